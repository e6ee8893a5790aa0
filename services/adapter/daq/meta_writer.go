// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package daq

import (
	"context"
	"strings"

	"github.com/aperture-daq/aperture/pkg/logging"
	"github.com/aperture-daq/aperture/services/adapter/attr"
	"github.com/aperture-daq/aperture/services/adapter/controller"
	"github.com/aperture-daq/aperture/services/adapter/params"
)

// metaWriterShape declares the attributes acquisition sequencing depends on.
// A meta writer missing any of them fails the build rather than surfacing
// broken writes later.
var metaWriterShape = &controller.Shape{
	TypeName: "MetaWriter",
	Attributes: map[string]controller.AttrSpec{
		"acquisition_id": {Type: params.String, Access: attr.ReadWrite},
		"directory":      {Type: params.String, Access: attr.ReadWrite},
		"file_prefix":    {Type: params.String, Access: attr.ReadWrite},
		"stop":           {Type: params.Bool, Access: attr.ReadWrite},
		"writing":        {Type: params.Bool, Access: attr.ReadOnly},
	},
}

// NewMetaWriter builds the node for the meta-writer subsystem. Unlike the
// frame processor it is a single process, so the tree stays flat; the
// reported parameters are reconciled against the writer's declared shape
// immediately.
func NewMetaWriter(ctx context.Context, b *controller.Builder, path []string, descriptors []params.Parameter) (*controller.Node, error) {
	logger := logging.Default().With("node", strings.Join(path, "/"))
	node := controller.NewNode(path, "MetaWriter")

	if err := addLeaves(node, b, descriptors, logger); err != nil {
		return nil, err
	}

	if err := controller.Reconcile(node, metaWriterShape); err != nil {
		return nil, err
	}
	return node, nil
}
