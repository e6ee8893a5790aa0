// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package daq

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aperture-daq/aperture/pkg/logging"
	"github.com/aperture-daq/aperture/services/adapter/controller"
	"github.com/aperture-daq/aperture/services/adapter/params"
)

// frUniqueConfig names receiver configuration that differs per process.
var frUniqueConfig = map[string]bool{
	"ctrl_endpoint":          true,
	"fr_ready_cnxn":          true,
	"fr_release_cnxn":        true,
	"rx_address":             true,
	"rx_ports":               true,
	"decoder_ctrl_endpoint":  true,
	"decoder_ready_endpoint": true,
}

// NewFrameReceiver builds the node for a frame-receiver subsystem. The
// per-process split mirrors the frame processor (FR0, FR1, ...); decoder
// parameters keep their decoder_ prefix inside each child, and shared
// writable configuration is fanned out from the parent.
func NewFrameReceiver(ctx context.Context, b *controller.Builder, path []string, descriptors []params.Parameter) (*controller.Node, error) {
	logger := logging.Default().With("node", strings.Join(path, "/"))
	node := controller.NewNode(path, "FrameReceiver")

	processes, rest := splitProcesses(descriptors)
	if len(processes) == 0 {
		return nil, fmt.Errorf("node %s: frame receiver reported no process subtrees", node)
	}

	var children []*controller.Node
	for _, index := range sortedIndices(processes) {
		child := controller.NewNode(append(slices.Clone(path), fmt.Sprintf("FR%d", index)), "FrameReceive")
		if err := addLeaves(child, b, processes[index], logger); err != nil {
			return nil, err
		}
		if err := node.AddChild(child); err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	if err := addLeaves(node, b, rest, logger); err != nil {
		return nil, err
	}

	if err := fanOutShared(node, children, frUniqueConfig, logger); err != nil {
		return nil, err
	}

	return node, nil
}
