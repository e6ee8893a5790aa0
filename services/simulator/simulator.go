// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package simulator runs an in-memory control server: the same HTTP surface
// a real acquisition stack exposes (adapters list, parameter GET with and
// without metadata, PUT with echo), backed by seeded parameter trees. It
// serves `aperture sim` for local development and the integration tests,
// which also use its fault injection to exercise error paths.
package simulator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/aperture-daq/aperture/pkg/logging"
)

// Fault modes injectable per subsystem.
type Fault int

const (
	FaultNone Fault = iota
	// FaultError makes every GET on the subsystem return HTTP 500.
	FaultError
	// FaultMalformed makes every GET return a non-JSON body.
	FaultMalformed
)

// leaf is one simulated parameter.
type leaf struct {
	value     any
	writeable bool
	typeName  string
	allowed   map[string]any
}

// Simulator is the in-memory control server.
type Simulator struct {
	logger *logging.Logger
	engine *gin.Engine

	mu         sync.RWMutex
	subsystems map[string]map[string]any
	faults     map[string]Fault
}

// New creates a simulator seeded with the default acquisition subsystems:
// a two-process frame processor, a two-process frame receiver, a meta
// writer and a detector.
func New(logger *logging.Logger) *Simulator {
	if logger == nil {
		logger = logging.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Simulator{
		logger:     logger.With("component", "simulator"),
		engine:     gin.New(),
		subsystems: defaultSubsystems(),
		faults:     make(map[string]Fault),
	}
	s.routes()
	return s
}

// Engine returns the underlying gin engine, usable as an http.Handler.
func (s *Simulator) Engine() *gin.Engine { return s.engine }

// Run serves the simulator on addr until the process exits.
func (s *Simulator) Run(addr string) error {
	s.logger.Info("simulator listening", "addr", addr)
	return s.engine.Run(addr)
}

// SetFault injects (or clears, with FaultNone) a fault on one subsystem.
func (s *Simulator) SetFault(subsystem string, fault Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[subsystem] = fault
}

func (s *Simulator) routes() {
	api := s.engine.Group("/api/0.1")
	api.GET("/:subsystem", s.handleGet)
	api.GET("/:subsystem/*path", s.handleGet)
	api.PUT("/:subsystem/*path", s.handlePut)
}

func (s *Simulator) handleGet(c *gin.Context) {
	subsystem := c.Param("subsystem")
	if subsystem == "adapters" {
		s.mu.RLock()
		names := make([]string, 0, len(s.subsystems))
		for name := range s.subsystems {
			names = append(names, name)
		}
		s.mu.RUnlock()
		slices.Sort(names)
		c.JSON(http.StatusOK, gin.H{"adapters": names})
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.faults[subsystem] {
	case FaultError:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "injected failure"})
		return
	case FaultMalformed:
		c.String(http.StatusOK, "not json")
		return
	}

	tree, ok := s.subsystems[subsystem]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no such adapter %q", subsystem)})
		return
	}

	withMetadata := strings.Contains(c.GetHeader("Accept"), "metadata=true")

	segments := splitPath(c.Param("path"))
	node, err := resolve(tree, segments)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	rendered := render(node, withMetadata)
	if len(segments) == 0 {
		c.JSON(http.StatusOK, rendered)
		return
	}
	c.JSON(http.StatusOK, gin.H{segments[len(segments)-1]: rendered})
}

func (s *Simulator) handlePut(c *gin.Context) {
	subsystem := c.Param("subsystem")

	s.mu.Lock()
	defer s.mu.Unlock()

	tree, ok := s.subsystems[subsystem]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no such adapter %q", subsystem)})
		return
	}

	segments := splitPath(c.Param("path"))
	if len(segments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot put the subsystem root"})
		return
	}

	node, err := resolve(tree, segments)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	target, ok := node.(*leaf)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"error": "cannot put a subtree"})
		return
	}
	if !target.writeable {
		c.JSON(http.StatusOK, gin.H{"error": "parameter is read-only"})
		return
	}

	decoder := json.NewDecoder(c.Request.Body)
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "undecodable value"})
		return
	}

	target.value = value
	s.react(subsystem, segments, value)
	s.logger.Debug("put", "subsystem", subsystem, "path", strings.Join(segments, "/"), "value", value)
	c.JSON(http.StatusOK, gin.H{segments[len(segments)-1]: value})
}

// react models backend side effects of configuration writes. Enabling the
// HDF write flag flips every frame processor into writing, the way a real
// stack starts an acquisition.
func (s *Simulator) react(subsystem string, segments []string, value any) {
	if subsystem != "fp" || len(segments) < 2 {
		return
	}
	if segments[len(segments)-2] != "hdf" || segments[len(segments)-1] != "write" {
		return
	}

	enabled := false
	if b, ok := value.(bool); ok {
		enabled = b
	}

	processes, _ := s.subsystems["fp"]["value"].([]any)
	for _, process := range processes {
		node, err := resolve(process, []string{"status", "hdf", "writing"})
		if err != nil {
			continue
		}
		if writing, ok := node.(*leaf); ok {
			writing.value = enabled
		}
	}
}

func splitPath(raw string) []string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// resolve descends the simulated tree, indexing lists by numeric segments.
func resolve(node any, segments []string) (any, error) {
	if len(segments) == 0 {
		return node, nil
	}
	head, rest := segments[0], segments[1:]

	switch n := node.(type) {
	case map[string]any:
		child, ok := n[head]
		if !ok {
			return nil, fmt.Errorf("no parameter %q", head)
		}
		return resolve(child, rest)
	case []any:
		index, err := strconv.Atoi(head)
		if err != nil || index < 0 || index >= len(n) {
			return nil, fmt.Errorf("no index %q", head)
		}
		return resolve(n[index], rest)
	default:
		return nil, fmt.Errorf("%q is a value, cannot descend", head)
	}
}

// render converts the internal tree to the wire form, with leaves either as
// bare values or as metadata objects.
func render(node any, withMetadata bool) any {
	switch n := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for key, child := range n {
			out[key] = render(child, withMetadata)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, child := range n {
			out[i] = render(child, withMetadata)
		}
		return out
	case *leaf:
		if withMetadata {
			out := map[string]any{
				"value":     n.value,
				"writeable": n.writeable,
				"type":      n.typeName,
			}
			if n.allowed != nil {
				out["allowed_values"] = n.allowed
			}
			return out
		}
		return n.value
	default:
		// Module markers and other plain values pass through.
		return n
	}
}
