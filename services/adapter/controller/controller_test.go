// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package controller

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-daq/aperture/services/adapter/attr"
	"github.com/aperture-daq/aperture/services/adapter/params"
)

func desc(uri string, vt params.ValueType, writeable bool) params.Parameter {
	return params.Parameter{
		URI:      strings.Split(uri, "/"),
		Metadata: params.Metadata{Type: vt, Writeable: writeable},
	}
}

func marker(uri, module string) params.Parameter {
	return params.Parameter{URI: strings.Split(uri, "/"), Module: module}
}

func TestBuildGenericTree(t *testing.T) {
	descriptors := []params.Parameter{
		desc("DETECTOR/frames", params.Int, true),
		desc("FP/frames", params.Int, false),
	}

	b := NewBuilder(nil, nil, 0, nil)
	root, err := b.Build(context.Background(), nil, descriptors)
	require.NoError(t, err)

	require.Len(t, root.Children(), 2)

	detector, ok := root.Child("DETECTOR")
	require.True(t, ok)
	assert.Equal(t, genericTypeName, detector.TypeName())
	assert.Equal(t, []string{"DETECTOR"}, detector.Path())

	frames, ok := detector.Attribute("frames")
	require.True(t, ok)
	assert.Equal(t, params.Int, frames.Type())
	assert.Equal(t, attr.ReadWrite, frames.Access())

	fp, ok := root.Child("FP")
	require.True(t, ok)
	fpFrames, ok := fp.Attribute("frames")
	require.True(t, ok)
	assert.Equal(t, attr.ReadOnly, fpFrames.Access())
}

func TestBuildNestedTree(t *testing.T) {
	descriptors := []params.Parameter{
		desc("fp/status/frames", params.Int, false),
		desc("fp/config/frames", params.Int, true),
		desc("version", params.String, false),
	}

	b := NewBuilder(nil, nil, 0, nil)
	root, err := b.Build(context.Background(), nil, descriptors)
	require.NoError(t, err)

	// Root leaf.
	version, ok := root.Attribute("version")
	require.True(t, ok)
	assert.Equal(t, params.String, version.Type())

	fp, ok := root.Child("fp")
	require.True(t, ok)
	status, ok := fp.Child("status")
	require.True(t, ok)
	_, ok = status.Attribute("frames")
	assert.True(t, ok)

	// The direct strategy keeps the full backend address.
	config, ok := fp.Child("config")
	require.True(t, ok)
	frames, ok := config.Attribute("frames")
	require.True(t, ok)
	direct, ok := frames.Strategy().(*attr.DirectIO)
	require.True(t, ok)
	assert.Equal(t, "fp/config/frames", direct.Path)
}

func TestBuildModuleDispatch(t *testing.T) {
	descriptors := []params.Parameter{
		marker("fp", "FrameProcessorAdapter"),
		desc("fp/status/frames", params.Int, false),
	}

	registry := Registry{}
	var gotPath []string
	var gotDescriptors []params.Parameter
	registry.Register("FrameProcessorAdapter", func(ctx context.Context, b *Builder, path []string, ds []params.Parameter) (*Node, error) {
		gotPath = path
		gotDescriptors = ds
		return NewNode(path, "FrameProcessor"), nil
	})

	b := NewBuilder(nil, registry, 0, nil)
	root, err := b.Build(context.Background(), nil, descriptors)
	require.NoError(t, err)

	fp, ok := root.Child("fp")
	require.True(t, ok)
	assert.Equal(t, "FrameProcessor", fp.TypeName())
	assert.Equal(t, []string{"fp"}, gotPath)

	// The constructor sees the subtree descriptors relative to its node.
	require.Len(t, gotDescriptors, 1)
	assert.Equal(t, []string{"status", "frames"}, gotDescriptors[0].Path())
	assert.Equal(t, []string{"fp", "status", "frames"}, gotDescriptors[0].URI)
}

func TestBuildUnregisteredModuleFallsBack(t *testing.T) {
	descriptors := []params.Parameter{
		marker("fp", "FrameProcessorAdapter"),
		desc("fp/status/frames", params.Int, false),
	}

	b := NewBuilder(nil, Registry{}, 0, nil)
	root, err := b.Build(context.Background(), nil, descriptors)
	require.NoError(t, err)

	fp, ok := root.Child("fp")
	require.True(t, ok)
	assert.Equal(t, genericTypeName, fp.TypeName())
}

func TestNodeInvariants(t *testing.T) {
	root := NewNode(nil, genericTypeName)

	child := NewNode([]string{"fp"}, genericTypeName)
	require.NoError(t, root.AddChild(child))

	// Duplicate child name.
	assert.Error(t, root.AddChild(NewNode([]string{"fp"}, genericTypeName)))

	// A child must extend the parent path by exactly one segment.
	assert.Error(t, root.AddChild(NewNode([]string{"fp", "status"}, genericTypeName)))

	a := attr.New("frames", params.Int, attr.ReadOnly, nil, nil)
	require.NoError(t, root.AddAttribute(a))
	assert.Error(t, root.AddAttribute(attr.New("frames", params.Int, attr.ReadOnly, nil, nil)))

	// Attribute and child names share a namespace.
	assert.Error(t, root.AddAttribute(attr.New("fp", params.Int, attr.ReadOnly, nil, nil)))
}

func TestReconcileMatchingShape(t *testing.T) {
	descriptors := []params.Parameter{
		desc("DETECTOR/frames", params.Int, true),
		desc("DETECTOR/exposure", params.Float, true),
		desc("FP/frames", params.Int, false),
	}

	b := NewBuilder(nil, nil, 0, nil)
	root, err := b.Build(context.Background(), nil, descriptors)
	require.NoError(t, err)

	shape := &Shape{
		TypeName: genericTypeName,
		Children: map[string]*Shape{
			"DETECTOR": {
				TypeName: genericTypeName,
				Attributes: map[string]AttrSpec{
					"frames":   {Type: params.Int, Access: attr.ReadWrite},
					"exposure": {Type: params.Float, Access: attr.ReadWrite},
				},
			},
		},
	}

	assert.NoError(t, Reconcile(root, shape))
}

func TestReconcileMissingChild(t *testing.T) {
	descriptors := []params.Parameter{
		desc("DETECTOR/frames", params.Int, true),
		desc("FP/frames", params.Int, false),
	}

	b := NewBuilder(nil, nil, 0, nil)
	root, err := b.Build(context.Background(), nil, descriptors)
	require.NoError(t, err)

	shape := &Shape{
		TypeName: genericTypeName,
		Children: map[string]*Shape{
			"DETECTOR": {
				TypeName: genericTypeName,
				Attributes: map[string]AttrSpec{
					"frames": {Type: params.Int, Access: attr.ReadWrite},
				},
			},
			"LOGS": {TypeName: genericTypeName},
		},
	}

	err = Reconcile(root, shape)
	require.Error(t, err)

	var mismatch *SubControllerMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "LOGS", mismatch.Child)
	assert.Equal(t, "not found", mismatch.Actual)
}

func TestReconcileMissingAttribute(t *testing.T) {
	node := NewNode(nil, genericTypeName)

	shape := &Shape{
		TypeName: genericTypeName,
		Attributes: map[string]AttrSpec{
			"frames": {Type: params.Int, Access: attr.ReadOnly},
		},
	}

	err := Reconcile(node, shape)
	require.Error(t, err)

	var mismatch *AttributeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "frames", mismatch.Attribute)
	assert.Equal(t, "not found", mismatch.Actual)
}

func TestReconcileAttributeTypeMismatch(t *testing.T) {
	node := NewNode(nil, genericTypeName)
	require.NoError(t, node.AddAttribute(attr.New("frames", params.Float, attr.ReadWrite, nil, nil)))

	shape := &Shape{
		TypeName: genericTypeName,
		Attributes: map[string]AttrSpec{
			"frames": {Type: params.Int, Access: attr.ReadWrite},
		},
	}

	var mismatch *AttributeMismatchError
	require.ErrorAs(t, Reconcile(node, shape), &mismatch)
	assert.Contains(t, mismatch.Error(), "float")
}

func TestReconcileAccessModes(t *testing.T) {
	tests := []struct {
		name     string
		built    attr.Access
		declared attr.Access
		ok       bool
	}{
		{"rw satisfies r", attr.ReadWrite, attr.ReadOnly, true},
		{"rw satisfies rw", attr.ReadWrite, attr.ReadWrite, true},
		{"r satisfies r", attr.ReadOnly, attr.ReadOnly, true},
		{"r does not satisfy rw", attr.ReadOnly, attr.ReadWrite, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := NewNode(nil, genericTypeName)
			require.NoError(t, node.AddAttribute(attr.New("frames", params.Int, tt.built, nil, nil)))

			shape := &Shape{
				TypeName: genericTypeName,
				Attributes: map[string]AttrSpec{
					"frames": {Type: params.Int, Access: tt.declared},
				},
			}

			err := Reconcile(node, shape)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestReconcileChildTypeNameExact(t *testing.T) {
	root := NewNode(nil, genericTypeName)
	require.NoError(t, root.AddChild(NewNode([]string{"fp"}, "FrameProcessor")))

	shape := &Shape{
		TypeName: genericTypeName,
		Children: map[string]*Shape{
			"fp": {TypeName: "MetaWriter"},
		},
	}

	var mismatch *SubControllerMismatchError
	require.ErrorAs(t, Reconcile(root, shape), &mismatch)
	assert.Equal(t, "MetaWriter", mismatch.Expected)
	assert.Equal(t, "FrameProcessor", mismatch.Actual)
}

func TestReconcileOwnTypeName(t *testing.T) {
	node := NewNode([]string{"mw"}, "MetaWriter")

	assert.NoError(t, Reconcile(node, &Shape{TypeName: "MetaWriter"}))

	// An empty declared type name is unconstrained.
	assert.NoError(t, Reconcile(node, &Shape{}))

	var mismatch *SubControllerMismatchError
	require.ErrorAs(t, Reconcile(node, &Shape{TypeName: "FrameProcessor"}), &mismatch)
	assert.Equal(t, "FrameProcessor", mismatch.Expected)
	assert.Equal(t, "MetaWriter", mismatch.Actual)
}

func TestReconcileExtrasPermitted(t *testing.T) {
	node := NewNode(nil, genericTypeName)
	require.NoError(t, node.AddAttribute(attr.New("frames", params.Int, attr.ReadOnly, nil, nil)))
	require.NoError(t, node.AddAttribute(attr.New("rate", params.Float, attr.ReadOnly, nil, nil)))
	require.NoError(t, node.AddChild(NewNode([]string{"extra"}, genericTypeName)))

	shape := &Shape{
		TypeName: genericTypeName,
		Attributes: map[string]AttrSpec{
			"frames": {Type: params.Int, Access: attr.ReadOnly},
		},
	}

	assert.NoError(t, Reconcile(node, shape))
}
