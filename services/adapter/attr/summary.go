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
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/aperture-daq/aperture/services/adapter/metrics"
	"github.com/aperture-daq/aperture/services/adapter/params"
)

// Reduction combines the values of several backing attributes into one.
// Each reduction restricts the value types it accepts, checked when the
// summary is constructed rather than on every read.
type Reduction struct {
	name  string
	kinds []params.ValueType
	fn    func(values []any) (any, error)
}

// Name returns the reduction name ("sum", "any", ...).
func (r Reduction) Name() string { return r.name }

func (r Reduction) accepts(vt params.ValueType) bool {
	for _, kind := range r.kinds {
		if kind == vt {
			return true
		}
	}
	return false
}

var (
	// Sum adds numeric values.
	Sum = Reduction{
		name:  "sum",
		kinds: []params.ValueType{params.Int, params.Float},
		fn: func(values []any) (any, error) {
			var intTotal int64
			var floatTotal float64
			isFloat := false
			for _, v := range values {
				switch n := v.(type) {
				case int64:
					intTotal += n
					floatTotal += float64(n)
				case float64:
					isFloat = true
					floatTotal += n
				default:
					return nil, fmt.Errorf("sum over non-numeric value %T", v)
				}
			}
			if isFloat {
				return floatTotal, nil
			}
			return intTotal, nil
		},
	}

	// Min takes the smallest numeric value.
	Min = Reduction{
		name:  "min",
		kinds: []params.ValueType{params.Int, params.Float},
		fn:    func(values []any) (any, error) { return pick(values, func(a, b float64) bool { return a < b }) },
	}

	// Max takes the largest numeric value.
	Max = Reduction{
		name:  "max",
		kinds: []params.ValueType{params.Int, params.Float},
		fn:    func(values []any) (any, error) { return pick(values, func(a, b float64) bool { return a > b }) },
	}

	// Any is true when at least one value is true.
	Any = Reduction{
		name:  "any",
		kinds: []params.ValueType{params.Bool},
		fn: func(values []any) (any, error) {
			for _, v := range values {
				b, ok := v.(bool)
				if !ok {
					return nil, fmt.Errorf("any over non-bool value %T", v)
				}
				if b {
					return true, nil
				}
			}
			return false, nil
		},
	}

	// All is true when every value is true.
	All = Reduction{
		name:  "all",
		kinds: []params.ValueType{params.Bool},
		fn: func(values []any) (any, error) {
			for _, v := range values {
				b, ok := v.(bool)
				if !ok {
					return nil, fmt.Errorf("all over non-bool value %T", v)
				}
				if !b {
					return false, nil
				}
			}
			return true, nil
		},
	}
)

// pick selects by comparison, keeping the int64/float64 kind of the winner.
func pick(values []any, better func(a, b float64) bool) (any, error) {
	var best any
	var bestFloat float64
	for _, v := range values {
		var f float64
		switch n := v.(type) {
		case int64:
			f = float64(n)
		case float64:
			f = n
		default:
			return nil, fmt.Errorf("comparison over non-numeric value %T", v)
		}
		if best == nil || better(f, bestFloat) {
			best, bestFloat = v, f
		}
	}
	return best, nil
}

// SummaryIO reads several backing attributes and reduces them to one value.
// The strategy is read-only; writes return ErrUnsupported.
type SummaryIO struct {
	sources   []*Attribute
	reduction Reduction
}

// NewSummaryIO creates a summary over sources. Sources must be non-empty
// and every source's declared type must be accepted by the reduction.
func NewSummaryIO(sources []*Attribute, reduction Reduction) (*SummaryIO, error) {
	if len(sources) == 0 {
		return nil, errors.New("summary requires at least one source")
	}
	for _, source := range sources {
		if !reduction.accepts(source.Type()) {
			return nil, fmt.Errorf("reduction %s cannot combine %s attribute %s",
				reduction.name, source.Type(), source.Name())
		}
	}
	return &SummaryIO{sources: sources, reduction: reduction}, nil
}

// Sources returns the backing attributes in construction order.
func (s *SummaryIO) Sources() []*Attribute { return s.sources }

// Read fetches every source concurrently, then reduces in source order so
// the result is deterministic for order-sensitive reductions.
func (s *SummaryIO) Read(ctx context.Context, a *Attribute) (any, error) {
	a.traceEvent("summary read", "reduction", s.reduction.name, "sources", len(s.sources))

	values := make([]any, len(s.sources))
	var g errgroup.Group
	for i, source := range s.sources {
		i, source := i, source
		g.Go(func() error {
			value, err := source.Read(ctx)
			if err != nil {
				return &AggregateError{Strategy: "summary", Member: source.Name(), Err: err}
			}
			values[i] = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.AggregateMemberFailures.WithLabelValues("summary").Inc()
		a.traceEvent("summary read failed", "error", err)
		return nil, err
	}

	result, err := s.reduction.fn(values)
	if err != nil {
		return nil, err
	}
	a.traceEvent("summary read done", "value", result)
	return result, nil
}

func (s *SummaryIO) Write(ctx context.Context, a *Attribute, value any) error {
	return fmt.Errorf("summary attribute %s: %w", a.Name(), ErrUnsupported)
}
