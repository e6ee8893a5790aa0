// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package attr

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/aperture-daq/aperture/services/adapter/metrics"
)

// FanOutIO drives several backing attributes from one write. All targets
// receive the write concurrently; there is no rollback, so on a partial
// failure the members that succeeded keep their new value. Reads come from
// the first target, which stands in for the group.
type FanOutIO struct {
	targets []*Attribute
}

// NewFanOutIO creates a fan-out over targets, which must be non-empty. The
// order is preserved: targets[0] is the read representative.
func NewFanOutIO(targets []*Attribute) (*FanOutIO, error) {
	if len(targets) == 0 {
		return nil, errors.New("fan-out requires at least one target")
	}
	return &FanOutIO{targets: targets}, nil
}

// Targets returns the backing attributes in construction order.
func (f *FanOutIO) Targets() []*Attribute { return f.targets }

func (f *FanOutIO) Read(ctx context.Context, a *Attribute) (any, error) {
	a.traceEvent("fan-out read", "representative", f.targets[0].Name())
	return f.targets[0].Read(ctx)
}

// Write sends value to every target concurrently. A plain group rather than
// a context-cancelling one: a failing member must not abort writes already
// in flight to its siblings.
func (f *FanOutIO) Write(ctx context.Context, a *Attribute, value any) error {
	a.traceEvent("fan-out write", "targets", len(f.targets), "value", value)

	var g errgroup.Group
	for _, target := range f.targets {
		target := target
		g.Go(func() error {
			if err := target.Write(ctx, value); err != nil {
				return &AggregateError{Strategy: "fan-out", Member: target.Name(), Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.AggregateMemberFailures.WithLabelValues("fan-out").Inc()
		a.traceEvent("fan-out write failed", "error", err)
		return err
	}
	return nil
}
