// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package attr

import (
	"context"
	"time"

	"github.com/aperture-daq/aperture/services/adapter/httpconn"
)

// DirectIO binds an attribute to a single backend parameter, read and
// written through a shared TreeCache so sibling attributes polled in the
// same period cost one backend round trip between them.
type DirectIO struct {
	// Cache is the subsystem tree cache the parameter lives under.
	Cache *httpconn.TreeCache

	// Path locates the parameter relative to the cache prefix,
	// slash-separated ("config/frames", "status/0/frames_written").
	Path string

	// UpdatePeriod bounds the staleness of reads. Zero forces a fresh
	// fetch on every read.
	UpdatePeriod time.Duration
}

func (d *DirectIO) Read(ctx context.Context, a *Attribute) (any, error) {
	a.traceEvent("direct read", "path", d.Path)
	value, err := d.Cache.Get(ctx, d.Path, d.UpdatePeriod)
	if err != nil {
		a.traceEvent("direct read failed", "path", d.Path, "error", err)
		return nil, err
	}
	a.traceEvent("direct read done", "path", d.Path, "value", value)
	return value, nil
}

func (d *DirectIO) Write(ctx context.Context, a *Attribute, value any) error {
	a.traceEvent("direct write", "path", d.Path, "value", value)
	echoed, err := d.Cache.Put(ctx, d.Path, value)
	if err != nil {
		a.traceEvent("direct write failed", "path", d.Path, "error", err)
		return err
	}
	a.traceEvent("direct write done", "path", d.Path, "echoed", echoed)
	return nil
}
