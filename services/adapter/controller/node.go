// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package controller builds and validates the runtime controller tree.
//
// The Builder turns a flat descriptor list into a tree of Nodes holding
// attributes, dispatching subtrees with a module identity through a
// registry of specialized constructors. Reconcile then checks the built
// tree against statically declared shapes and fails fast on any mismatch,
// so application code never sees a tree that does not carry the structure
// it was written against.
package controller

import (
	"fmt"
	"strings"

	"github.com/aperture-daq/aperture/services/adapter/attr"
)

// Node is one position in the controller tree. It owns its attributes and
// child nodes. The tree shape is fixed once built; only attribute values
// change afterwards.
type Node struct {
	path       []string
	typeName   string
	attributes map[string]*attr.Attribute
	children   map[string]*Node
}

// NewNode creates an empty node at path. typeName identifies the shape the
// node was constructed as and is matched exactly during reconciliation.
func NewNode(path []string, typeName string) *Node {
	return &Node{
		path:       path,
		typeName:   typeName,
		attributes: make(map[string]*attr.Attribute),
		children:   make(map[string]*Node),
	}
}

// Path returns the node's position in the tree.
func (n *Node) Path() []string { return n.path }

// Name returns the last path segment, or "" for the root.
func (n *Node) Name() string {
	if len(n.path) == 0 {
		return ""
	}
	return n.path[len(n.path)-1]
}

// TypeName returns the declared type the node was constructed as.
func (n *Node) TypeName() string { return n.typeName }

// Attribute looks up an attribute by name.
func (n *Node) Attribute(name string) (*attr.Attribute, bool) {
	a, ok := n.attributes[name]
	return a, ok
}

// Attributes returns the attribute map. Callers must not mutate it.
func (n *Node) Attributes() map[string]*attr.Attribute { return n.attributes }

// Child looks up a child node by name.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.children[name]
	return c, ok
}

// Children returns the child map. Callers must not mutate it.
func (n *Node) Children() map[string]*Node { return n.children }

// AddAttribute registers a, failing on a duplicate name or a name already
// taken by a child.
func (n *Node) AddAttribute(a *attr.Attribute) error {
	name := a.Name()
	if _, exists := n.attributes[name]; exists {
		return fmt.Errorf("node %s: duplicate attribute %q", n, name)
	}
	if _, exists := n.children[name]; exists {
		return fmt.Errorf("node %s: attribute %q collides with a child", n, name)
	}
	n.attributes[name] = a
	return nil
}

// AddChild registers child under its own name. The child's path must extend
// this node's path by exactly one segment.
func (n *Node) AddChild(child *Node) error {
	if len(child.path) != len(n.path)+1 {
		return fmt.Errorf("node %s: child %s does not extend the path by one segment", n, child)
	}
	name := child.Name()
	if _, exists := n.children[name]; exists {
		return fmt.Errorf("node %s: duplicate child %q", n, name)
	}
	if _, exists := n.attributes[name]; exists {
		return fmt.Errorf("node %s: child %q collides with an attribute", n, name)
	}
	n.children[name] = child
	return nil
}

// SetTrace toggles diagnostic tracing on every attribute in this subtree.
func (n *Node) SetTrace(enabled bool) {
	for _, a := range n.attributes {
		a.SetTrace(enabled)
	}
	for _, child := range n.children {
		child.SetTrace(enabled)
	}
}

func (n *Node) String() string {
	if len(n.path) == 0 {
		return "<root>"
	}
	return strings.Join(n.path, "/")
}
