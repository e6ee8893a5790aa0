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

	"github.com/aperture-daq/aperture/services/adapter/params"
)

// pollInterval is how often WaitForValue re-reads the attribute.
const pollInterval = 50 * time.Millisecond

// WaitForValue polls a until its value equals expected or timeout elapses.
// The expected value is normalized to the attribute's declared type before
// comparison, so WaitForValue(ctx, frames, 10, ...) matches whether the
// backend reports 10 as an int or a whole float.
//
// Reads run against the caller's ctx: hitting the timeout stops polling but
// does not cancel a read already in flight. On timeout the attribute keeps
// its last observed value and a WaitTimeoutError is returned.
func WaitForValue(ctx context.Context, a *Attribute, expected any, timeout time.Duration) error {
	want, err := params.Normalize(expected, a.Type())
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		value, err := a.Read(ctx)
		if err == nil && value == want {
			return nil
		}
		if err != nil {
			a.traceEvent("wait poll failed", "error", err)
		}

		if time.Now().After(deadline) {
			return &WaitTimeoutError{Attribute: a.Name(), Expected: want, Timeout: timeout}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
