// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package adapter assembles the full controller tree for one control
// server: it discovers the server's subsystems, introspects each one,
// builds and reconciles its node and keeps the status trees polled.
package adapter

import (
	"context"
	"fmt"

	"github.com/aperture-daq/aperture/pkg/config"
	"github.com/aperture-daq/aperture/pkg/logging"
	"github.com/aperture-daq/aperture/services/adapter/controller"
	"github.com/aperture-daq/aperture/services/adapter/httpconn"
)

// rootTypeName is the declared type of the assembled root node.
const rootTypeName = "ControlServer"

// Adapter owns the connection, the built tree and the scan scheduler for
// one control server.
type Adapter struct {
	cfg      config.Config
	conn     *httpconn.Connection
	registry controller.Registry
	shape    *controller.Shape
	logger   *logging.Logger

	root    *controller.Node
	scanner *controller.Scanner
	caches  map[string]*httpconn.TreeCache
}

// New creates an adapter for the control server named in cfg. registry
// supplies specialized node constructors; shape, if non-nil, is reconciled
// against the assembled root before it is exposed.
func New(cfg config.Config, registry controller.Registry, shape *controller.Shape, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	conn := httpconn.New(httpconn.Settings{
		Host:      cfg.Backend.Host,
		Port:      cfg.Backend.Port,
		APIPrefix: cfg.Backend.APIPrefix,
		Timeout:   cfg.Backend.Timeout,
	}, logger)

	return &Adapter{
		cfg:      cfg,
		conn:     conn,
		registry: registry,
		shape:    shape,
		logger:   logger,
		scanner:  controller.NewScanner(logger),
		caches:   make(map[string]*httpconn.TreeCache),
	}
}

// Connection returns the shared backend connection.
func (a *Adapter) Connection() *httpconn.Connection { return a.conn }

// Root returns the assembled tree. Nil until Connect succeeds.
func (a *Adapter) Root() *controller.Node { return a.root }

// Connect discovers the server's subsystems and builds the whole tree. Any
// unreachable subsystem, malformed schema or reconciliation mismatch aborts
// the connect: no partially validated tree is ever exposed.
func (a *Adapter) Connect(ctx context.Context) error {
	names, err := a.conn.Subsystems(ctx)
	if err != nil {
		return fmt.Errorf("subsystem discovery failed: %w", err)
	}
	a.logger.Info("discovered subsystems", "names", names)

	root := controller.NewNode(nil, rootTypeName)
	caches := make(map[string]*httpconn.TreeCache, len(names))

	for _, name := range names {
		node, cache, err := a.buildSubsystem(ctx, name)
		if err != nil {
			return fmt.Errorf("subsystem %s: %w", name, err)
		}
		if err := root.AddChild(node); err != nil {
			return err
		}
		caches[name] = cache
	}

	if err := controller.Reconcile(root, a.shape); err != nil {
		return err
	}

	a.root = root
	a.caches = caches
	a.registerScans()
	return nil
}

func (a *Adapter) buildSubsystem(ctx context.Context, name string) (*controller.Node, *httpconn.TreeCache, error) {
	descriptors, err := a.conn.Fetch(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	cache := httpconn.NewTreeCache(name, a.conn, a.logger)
	builder := controller.NewBuilder(cache, a.registry, a.cfg.Poll.UpdatePeriod, a.logger)

	node, err := builder.Build(ctx, []string{name}, descriptors)
	if err != nil {
		return nil, nil, err
	}
	return node, cache, nil
}

// registerScans adds one scan per subsystem that reads every attribute in
// its subtree, keeping last-known values fresh for consumers that only Get.
func (a *Adapter) registerScans() {
	for name, child := range a.root.Children() {
		node := child
		a.scanner.Register(name, a.cfg.Poll.ScanPeriod, func(ctx context.Context) error {
			return readSubtree(ctx, node)
		})
	}
}

// Start launches the scan scheduler. Connect must have succeeded.
func (a *Adapter) Start(ctx context.Context) error {
	if a.root == nil {
		return fmt.Errorf("adapter is not connected")
	}
	a.scanner.Start(ctx)
	return nil
}

// Stop halts all scans.
func (a *Adapter) Stop() {
	a.scanner.Stop()
}

// Invalidate drops every cached subsystem tree; subsequent reads refetch.
func (a *Adapter) Invalidate() {
	for _, cache := range a.caches {
		cache.Invalidate()
	}
}

// readSubtree reads every attribute under node, returning the first error
// after attempting all of them.
func readSubtree(ctx context.Context, node *controller.Node) error {
	var firstErr error
	for _, attribute := range node.Attributes() {
		if _, err := attribute.Read(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, child := range node.Children() {
		if err := readSubtree(ctx, child); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
