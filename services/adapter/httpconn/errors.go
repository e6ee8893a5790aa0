// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpconn

import "fmt"

// UnreachableError reports that the control server could not be reached or
// did not answer in time. Builds and fetches abort on it; this layer never
// retries.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("control server unreachable at %s: %v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// MalformedSchemaError reports that a schema response could not be decoded
// into parameter descriptors.
type MalformedSchemaError struct {
	URL string
	Err error
}

func (e *MalformedSchemaError) Error() string {
	return fmt.Sprintf("malformed schema from %s: %v", e.URL, e.Err)
}

func (e *MalformedSchemaError) Unwrap() error { return e.Err }

// ResponseError reports an error payload or non-success status returned by
// the control server for an otherwise successful request.
type ResponseError struct {
	URL     string
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("control server error from %s: %s", e.URL, e.Message)
	}
	return fmt.Sprintf("control server returned HTTP %d for %s", e.Status, e.URL)
}
