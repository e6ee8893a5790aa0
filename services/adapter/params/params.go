// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package params defines parameter descriptors for the control server's
// introspectable parameter trees and the walk that flattens a tree response
// into descriptors.
//
// A Parameter is an immutable snapshot of one remote parameter. Re-fetching
// a subtree produces fresh descriptors; nothing in this package mutates a
// descriptor after the walk, except the path reduction that controllers
// apply before attribute names are derived (SetPath overrides the name, the
// URI always stays the full backend address).
package params

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValueType is the declared type of a parameter value.
type ValueType int

const (
	Unknown ValueType = iota
	Int
	Float
	Bool
	String
	Enum
)

// String returns the backend type-name spelling.
func (t ValueType) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case String:
		return "str"
	case Enum:
		return "enum"
	default:
		return "unknown"
	}
}

// ParseValueType maps a backend-reported type name to a ValueType.
func ParseValueType(name string) ValueType {
	switch name {
	case "int":
		return Int
	case "float":
		return Float
	case "bool":
		return Bool
	case "str", "string":
		return String
	case "enum":
		return Enum
	default:
		return Unknown
	}
}

// Metadata is the backend-reported description of one parameter. Extra holds
// auxiliary fields (units, min/max) the adapter passes through untouched.
type Metadata struct {
	Value         any
	Writeable     bool
	Type          ValueType
	AllowedValues map[int]string
	Extra         map[string]any
}

// Parameter is an immutable snapshot of one remote parameter.
//
// URI is the full address of the parameter under its subsystem root. Path is
// the reduced form used to derive the attribute name; it defaults to URI and
// is overridden by controllers that strip redundant segments (status/config,
// process indices).
type Parameter struct {
	URI      []string
	Metadata Metadata

	// Module is set on marker descriptors that identify the component type
	// owning a subtree. Marker descriptors carry no metadata.
	Module string

	path []string
}

// Path returns the reduced path, falling back to the URI.
func (p Parameter) Path() []string {
	if len(p.path) > 0 {
		return p.path
	}
	return p.URI
}

// SetPath overrides the reduced path used for the attribute name.
func (p *Parameter) SetPath(path []string) {
	p.path = path
}

// Name returns the unique attribute name for this parameter within its
// controller, derived by joining the reduced path.
func (p Parameter) Name() string {
	return strings.Join(p.Path(), "_")
}

// IsMarker reports whether this descriptor is a module-identity marker
// rather than a value leaf.
func (p Parameter) IsMarker() bool {
	return p.Module != ""
}

func (p Parameter) String() string {
	if p.IsMarker() {
		return fmt.Sprintf("Parameter(%s module=%s)", strings.Join(p.URI, "/"), p.Module)
	}
	return fmt.Sprintf("Parameter(%s %s)", strings.Join(p.URI, "/"), p.Metadata.Type)
}

// Partition splits elements in two based on predicate: (truthy, falsy).
func Partition[T any](elements []T, predicate func(T) bool) ([]T, []T) {
	var truthy, falsy []T
	for _, element := range elements {
		if predicate(element) {
			truthy = append(truthy, element)
		} else {
			falsy = append(falsy, element)
		}
	}
	return truthy, falsy
}

// Normalize coerces a decoded JSON value to the Go representation for t:
// int64 for Int and Enum, float64 for Float, bool for Bool, string for
// String. json.Number values from the wire are converted, not stringified.
func Normalize(value any, t ValueType) (any, error) {
	switch t {
	case Int, Enum:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				// Some backends report whole floats for int parameters.
				f, ferr := v.Float64()
				if ferr != nil {
					return nil, fmt.Errorf("value %v is not an integer", value)
				}
				return int64(f), nil
			}
			return n, nil
		default:
			return nil, fmt.Errorf("value %v (%T) is not an integer", value, value)
		}
	case Float:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case json.Number:
			return v.Float64()
		default:
			return nil, fmt.Errorf("value %v (%T) is not a float", value, value)
		}
	case Bool:
		switch v := value.(type) {
		case bool:
			return v, nil
		// Writes to bool parameters accept 0/1, matching the backend.
		case int64:
			return v != 0, nil
		case float64:
			return v != 0, nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("value %v is not a bool", value)
			}
			return f != 0, nil
		default:
			return nil, fmt.Errorf("value %v (%T) is not a bool", value, value)
		}
	case String:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", value), nil
	default:
		return value, nil
	}
}
