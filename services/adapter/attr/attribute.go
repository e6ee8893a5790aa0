// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package attr implements attributes and their I/O strategies.
//
// An Attribute is a named read/write slot with a declared value type, owned
// by exactly one controller node and backed by exactly one strategy:
// DirectIO (one backend parameter), FanOutIO (one write drives many backing
// attributes) or SummaryIO (many backing attributes reduced into one read
// value).
//
// Values are stored normalized (int64/float64/bool/string per the declared
// type). Reads and writes on the same attribute issued concurrently have no
// guaranteed relative order; callers needing ordering use WaitForValue or
// avoid overlapping calls.
package attr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aperture-daq/aperture/pkg/logging"
	"github.com/aperture-daq/aperture/services/adapter/params"
)

// Access is the access mode of an attribute.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "rw"
	}
	return "r"
}

// IO is the strategy behind an attribute. Implementations receive the
// attribute so they can emit trace events and consult its declared type.
type IO interface {
	// Read fetches the current value from wherever the strategy is backed.
	Read(ctx context.Context, a *Attribute) (any, error)

	// Write applies value. Strategies that cannot write return
	// ErrUnsupported without side effects.
	Write(ctx context.Context, a *Attribute, value any) error
}

// Attribute is a readable and/or writable value slot.
type Attribute struct {
	name   string
	vtype  params.ValueType
	access Access
	io     IO
	logger *logging.Logger

	trace atomic.Bool

	mu    sync.RWMutex
	value any
}

// New creates an attribute. A nil logger falls back to the default logger.
func New(name string, vtype params.ValueType, access Access, io IO, logger *logging.Logger) *Attribute {
	if logger == nil {
		logger = logging.Default()
	}
	return &Attribute{
		name:   name,
		vtype:  vtype,
		access: access,
		io:     io,
		logger: logger.With("attribute", name),
	}
}

// Name returns the attribute name, unique within its controller node.
func (a *Attribute) Name() string { return a.name }

// Type returns the declared value type.
func (a *Attribute) Type() params.ValueType { return a.vtype }

// Access returns the access mode.
func (a *Attribute) Access() Access { return a.access }

// Strategy returns the I/O strategy backing this attribute.
func (a *Attribute) Strategy() IO { return a.io }

// Get returns the last known value without touching the backend. It may be
// stale (or nil) until the first Read.
func (a *Attribute) Get() any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Read fetches the current value through the I/O strategy, normalizes it to
// the declared type and stores it as the last known value.
func (a *Attribute) Read(ctx context.Context) (any, error) {
	raw, err := a.io.Read(ctx, a)
	if err != nil {
		return nil, err
	}

	value, err := params.Normalize(raw, a.vtype)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", a.name, err)
	}

	a.store(value)
	return value, nil
}

// Write applies value through the I/O strategy. Writes to read-only
// attributes fail with ErrUnsupported and have no side effect.
func (a *Attribute) Write(ctx context.Context, value any) error {
	if a.access != ReadWrite {
		return fmt.Errorf("attribute %s is read-only: %w", a.name, ErrUnsupported)
	}

	normalized, err := params.Normalize(value, a.vtype)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", a.name, err)
	}

	if err := a.io.Write(ctx, a, normalized); err != nil {
		return err
	}

	a.store(normalized)
	return nil
}

// Update stores value as the last known value without backend I/O. Used by
// strategies that learn the value as a side effect (fan-out write echo).
func (a *Attribute) Update(value any) {
	if normalized, err := params.Normalize(value, a.vtype); err == nil {
		a.store(normalized)
	}
}

// SetTrace toggles low-level I/O diagnostics for this attribute. The toggle
// takes effect on subsequent operations only.
func (a *Attribute) SetTrace(enabled bool) {
	a.trace.Store(enabled)
}

// TraceEnabled reports whether tracing is on.
func (a *Attribute) TraceEnabled() bool {
	return a.trace.Load()
}

// traceEvent logs a diagnostic event if tracing is enabled.
func (a *Attribute) traceEvent(msg string, args ...any) {
	if a.trace.Load() {
		a.logger.Trace(msg, args...)
	}
}

func (a *Attribute) store(value any) {
	a.mu.Lock()
	a.value = value
	a.mu.Unlock()
}
