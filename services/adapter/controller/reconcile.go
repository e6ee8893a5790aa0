// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package controller

import (
	"fmt"

	"github.com/aperture-daq/aperture/services/adapter/attr"
	"github.com/aperture-daq/aperture/services/adapter/params"
)

// AttrSpec declares the expected type and access of one attribute.
type AttrSpec struct {
	Type   params.ValueType
	Access attr.Access
}

func (s AttrSpec) String() string {
	return fmt.Sprintf("%s %s", s.Type, s.Access)
}

// Shape is a static declaration of what a node must carry: its exact type
// name, attributes by name and children by name. It is authored by
// application code independent of any live backend and checked against the
// built tree once, at startup. A shape is a lower bound: attributes and
// children the backend reports beyond it stay accessible dynamically. An
// empty TypeName leaves the node's own type unconstrained.
type Shape struct {
	TypeName   string
	Attributes map[string]AttrSpec
	Children   map[string]*Shape
}

// AttributeMismatchError reports a declared attribute the built node does
// not satisfy.
type AttributeMismatchError struct {
	Node      string
	Attribute string
	Expected  string
	Actual    string
}

func (e *AttributeMismatchError) Error() string {
	return fmt.Sprintf("node %s: attribute %s: expected %s, got %s",
		e.Node, e.Attribute, e.Expected, e.Actual)
}

// SubControllerMismatchError reports a declared child the built node does
// not satisfy.
type SubControllerMismatchError struct {
	Node     string
	Child    string
	Expected string
	Actual   string
}

func (e *SubControllerMismatchError) Error() string {
	return fmt.Sprintf("node %s: child %s: expected %s, got %s",
		e.Node, e.Child, e.Expected, e.Actual)
}

// Reconcile checks node against shape and every declared descendant against
// its child shape. Any mismatch fails the whole call: callers must treat a
// reconciliation failure as fatal for the build, never expose a partially
// validated tree.
//
// Attribute checks require the exact declared value type; a declared
// read-only attribute is satisfied by a read-write one, a declared
// read-write attribute is not satisfied by a read-only one. Type names,
// the node's own included, must match the declaration exactly; an empty
// declared type name is unconstrained.
func Reconcile(node *Node, shape *Shape) error {
	if shape == nil {
		return nil
	}

	if shape.TypeName != "" && node.TypeName() != shape.TypeName {
		return &SubControllerMismatchError{
			Node:     node.String(),
			Child:    node.Name(),
			Expected: shape.TypeName,
			Actual:   node.TypeName(),
		}
	}

	for name, spec := range shape.Attributes {
		built, ok := node.Attribute(name)
		if !ok {
			return &AttributeMismatchError{
				Node:      node.String(),
				Attribute: name,
				Expected:  spec.String(),
				Actual:    "not found",
			}
		}
		if built.Type() != spec.Type || !satisfies(built.Access(), spec.Access) {
			return &AttributeMismatchError{
				Node:      node.String(),
				Attribute: name,
				Expected:  spec.String(),
				Actual:    fmt.Sprintf("%s %s", built.Type(), built.Access()),
			}
		}
	}

	for name, childShape := range shape.Children {
		child, ok := node.Child(name)
		if !ok {
			return &SubControllerMismatchError{
				Node:     node.String(),
				Child:    name,
				Expected: childShape.TypeName,
				Actual:   "not found",
			}
		}
		if childShape.TypeName != "" && child.TypeName() != childShape.TypeName {
			return &SubControllerMismatchError{
				Node:     node.String(),
				Child:    name,
				Expected: childShape.TypeName,
				Actual:   child.TypeName(),
			}
		}
		if err := Reconcile(child, childShape); err != nil {
			return err
		}
	}

	return nil
}

// satisfies reports whether a built access mode meets a declared one.
func satisfies(built, declared attr.Access) bool {
	if declared == attr.ReadWrite {
		return built == attr.ReadWrite
	}
	return true
}
