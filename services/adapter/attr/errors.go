// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package attr

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported is returned by writes to attributes whose strategy is
// read-only by construction (summary readers) or whose access is read-only.
// The write has no side effect.
var ErrUnsupported = errors.New("operation not supported")

// AggregateError reports that one member of a fan-out write or summary read
// failed. Members already applied are not rolled back; there is no
// cross-backend transaction.
type AggregateError struct {
	Strategy string
	Member   string
	Err      error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("%s member %s failed: %v", e.Strategy, e.Member, e.Err)
}

func (e *AggregateError) Unwrap() error { return e.Err }

// WaitTimeoutError reports that WaitForValue exceeded its deadline. The
// attribute value is left as last observed.
type WaitTimeoutError struct {
	Attribute string
	Expected  any
	Timeout   time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("attribute %s did not reach %v within %s", e.Attribute, e.Expected, e.Timeout)
}
