// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package controller

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/aperture-daq/aperture/pkg/logging"
	"github.com/aperture-daq/aperture/services/adapter/attr"
	"github.com/aperture-daq/aperture/services/adapter/httpconn"
	"github.com/aperture-daq/aperture/services/adapter/metrics"
	"github.com/aperture-daq/aperture/services/adapter/params"
)

// genericTypeName is the declared type of nodes built without a registered
// constructor.
const genericTypeName = "Controller"

// Constructor builds a specialized node for a module identity. It receives
// the builder for recursion, the node's path and the descriptors under it
// (paths already relative to the node).
type Constructor func(ctx context.Context, b *Builder, path []string, descriptors []params.Parameter) (*Node, error)

// Registry maps backend-reported module identities to node constructors.
// Entries may be added or overridden any time before Build is called.
type Registry map[string]Constructor

// Register binds a constructor to a module identity, replacing any previous
// binding.
func (r Registry) Register(module string, constructor Constructor) {
	r[module] = constructor
}

// Builder constructs controller trees from descriptor lists. Leaf
// descriptors become attributes with direct I/O through the builder's tree
// cache; subtrees carrying a module marker dispatch through the registry.
type Builder struct {
	cache        *httpconn.TreeCache
	registry     Registry
	updatePeriod time.Duration
	logger       *logging.Logger
}

// NewBuilder creates a builder. updatePeriod bounds the staleness of direct
// reads; a nil registry disables module dispatch.
func NewBuilder(cache *httpconn.TreeCache, registry Registry, updatePeriod time.Duration, logger *logging.Logger) *Builder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Builder{
		cache:        cache,
		registry:     registry,
		updatePeriod: updatePeriod,
		logger:       logger,
	}
}

// UpdatePeriod returns the staleness bound applied to direct reads.
func (b *Builder) UpdatePeriod() time.Duration { return b.updatePeriod }

// Build constructs the tree for descriptors, rooted at path. A module
// marker for the root itself (empty relative path) dispatches the whole
// subtree through the registry. The result is not yet reconciled; callers
// validate it with Reconcile before use.
func (b *Builder) Build(ctx context.Context, path []string, descriptors []params.Parameter) (*Node, error) {
	module := ""
	for _, d := range descriptors {
		if d.IsMarker() && len(d.Path()) == 0 {
			module = d.Module
		}
	}

	node, err := b.dispatch(ctx, path, module, descriptors)
	if err != nil {
		metrics.TreeBuilds.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.TreeBuilds.WithLabelValues("ok").Inc()
	return node, nil
}

// BuildAt constructs a generic node at path from descriptors whose reduced
// paths are relative to that node. Grouping is by leading path segment, so
// descriptor order never affects the result.
func (b *Builder) BuildAt(ctx context.Context, path []string, descriptors []params.Parameter) (*Node, error) {
	leaves, groups, modules := partition(descriptors)

	node := NewNode(path, genericTypeName)

	for _, leaf := range leaves {
		if err := node.AddAttribute(b.NewAttribute(leaf)); err != nil {
			return nil, err
		}
	}

	for _, name := range childNames(groups, modules) {
		child, err := b.dispatch(ctx, append(slices.Clone(path), name), modules[name], groups[name])
		if err != nil {
			return nil, err
		}
		if err := node.AddChild(child); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// dispatch picks a constructor for a module identity, falling back to a
// generic node when no constructor is registered.
func (b *Builder) dispatch(ctx context.Context, path []string, module string, descriptors []params.Parameter) (*Node, error) {
	if module != "" {
		if constructor, ok := b.registry[module]; ok {
			b.logger.Debug("building specialized node", "path", strings.Join(path, "/"), "module", module)
			return constructor(ctx, b, path, descriptors)
		}
		b.logger.Debug("no constructor for module, using generic node",
			"path", strings.Join(path, "/"), "module", module)
	}
	return b.BuildAt(ctx, path, descriptors)
}

// NewAttribute creates an attribute for a leaf descriptor, wired directly to
// its backend parameter through the builder's cache.
func (b *Builder) NewAttribute(p params.Parameter) *attr.Attribute {
	access := attr.ReadOnly
	if p.Metadata.Writeable {
		access = attr.ReadWrite
	}
	io := &attr.DirectIO{
		Cache:        b.cache,
		Path:         strings.Join(p.URI, "/"),
		UpdatePeriod: b.updatePeriod,
	}
	return attr.New(p.Name(), p.Metadata.Type, access, io, b.logger)
}

// partition splits descriptors into this node's leaves, per-child groups
// (with paths re-based onto the child) and per-child module identities.
func partition(descriptors []params.Parameter) ([]params.Parameter, map[string][]params.Parameter, map[string]string) {
	var leaves []params.Parameter
	groups := make(map[string][]params.Parameter)
	modules := make(map[string]string)

	for _, d := range descriptors {
		rel := d.Path()
		switch {
		case len(rel) == 0:
			// A marker for the node itself; its module identity was
			// already consumed by the parent's dispatch.
		case len(rel) == 1 && !d.IsMarker():
			reduced := d
			reduced.SetPath(rel)
			leaves = append(leaves, reduced)
		case len(rel) == 1:
			// A module marker naming the child's component type. It is
			// consumed here by the dispatch, not passed down.
			modules[rel[0]] = d.Module
		default:
			name := rel[0]
			child := d
			child.SetPath(rel[1:])
			groups[name] = append(groups[name], child)
		}
	}

	return leaves, groups, modules
}

// childNames returns the union of grouped and marker-only child names,
// sorted. A subtree that reported only a module marker still gets a node.
func childNames(groups map[string][]params.Parameter, modules map[string]string) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	for name := range modules {
		if _, ok := groups[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
