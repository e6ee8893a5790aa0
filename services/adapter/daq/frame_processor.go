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
	"time"

	"github.com/aperture-daq/aperture/pkg/logging"
	"github.com/aperture-daq/aperture/services/adapter/attr"
	"github.com/aperture-daq/aperture/services/adapter/controller"
	"github.com/aperture-daq/aperture/services/adapter/params"
)

// fpUniqueConfig names configuration parameters that differ per process and
// must never be fanned out from the parent.
var fpUniqueConfig = map[string]bool{
	"rank":            true,
	"number":          true,
	"ctrl_endpoint":   true,
	"meta_endpoint":   true,
	"fr_ready_cnxn":   true,
	"fr_release_cnxn": true,
}

// NewFrameProcessor builds the node for a frame-processor subsystem. Each
// underlying process becomes a child (FP0, FP1, ...); writable configuration
// shared by every process is exposed on the parent as a fan-out attribute,
// and the per-process HDF plugin status is summarized into frames_written
// (sum) and writing (any).
func NewFrameProcessor(ctx context.Context, b *controller.Builder, path []string, descriptors []params.Parameter) (*controller.Node, error) {
	logger := logging.Default().With("node", strings.Join(path, "/"))
	node := controller.NewNode(path, "FrameProcessor")

	processes, rest := splitProcesses(descriptors)
	if len(processes) == 0 {
		return nil, fmt.Errorf("node %s: frame processor reported no process subtrees", node)
	}

	var children []*controller.Node
	for _, index := range sortedIndices(processes) {
		child := controller.NewNode(append(slices.Clone(path), fmt.Sprintf("FP%d", index)), "FrameProcess")
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

	if err := fanOutShared(node, children, fpUniqueConfig, logger); err != nil {
		return nil, err
	}
	if err := addSummary(node, children, "frames_written", "hdf_frames_written", params.Int, attr.Sum); err != nil {
		return nil, err
	}
	if err := addSummary(node, children, "writing", "hdf_writing", params.Bool, attr.Any); err != nil {
		return nil, err
	}

	return node, nil
}

// fanOutShared lifts every writable attribute present on all children onto
// the parent as a fan-out, skipping per-process unique parameters. Children
// that disagree on type or access for a name are left as-is with a warning.
func fanOutShared(parent *controller.Node, children []*controller.Node, unique map[string]bool, logger *logging.Logger) error {
	if len(children) == 0 {
		return nil
	}

	first := children[0]
	names := make([]string, 0, len(first.Attributes()))
	for name := range first.Attributes() {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		representative, _ := first.Attribute(name)
		if representative.Access() != attr.ReadWrite || unique[name] {
			continue
		}

		targets := []*attr.Attribute{representative}
		shared := true
		for _, child := range children[1:] {
			target, ok := child.Attribute(name)
			if !ok || target.Access() != attr.ReadWrite || target.Type() != representative.Type() {
				shared = false
				break
			}
			targets = append(targets, target)
		}
		if !shared {
			logger.Warn("config parameter not shared by all processes, not fanning out", "attribute", name)
			continue
		}

		io, err := attr.NewFanOutIO(targets)
		if err != nil {
			return err
		}
		if err := parent.AddAttribute(attr.New(name, representative.Type(), attr.ReadWrite, io, logger)); err != nil {
			return err
		}
	}

	return nil
}

// addSummary creates a read-only parent attribute reducing one per-process
// attribute across all children. A child missing the source attribute fails
// the build: the summary is part of the node's declared structure.
func addSummary(parent *controller.Node, children []*controller.Node, name, source string, vt params.ValueType, reduction attr.Reduction) error {
	sources := make([]*attr.Attribute, 0, len(children))
	for _, child := range children {
		a, ok := child.Attribute(source)
		if !ok {
			return fmt.Errorf("node %s: missing %s, required to summarize %s on %s",
				child, source, name, parent)
		}
		sources = append(sources, a)
	}

	io, err := attr.NewSummaryIO(sources, reduction)
	if err != nil {
		return err
	}
	return parent.AddAttribute(attr.New(name, vt, attr.ReadOnly, io, nil))
}

// StartAcquisition enables HDF writing across all frame processors and
// blocks until the summarized writing flag confirms it, or timeout.
func StartAcquisition(ctx context.Context, fp *controller.Node, timeout time.Duration) error {
	write, ok := fp.Attribute("hdf_write")
	if !ok {
		return fmt.Errorf("node %s has no hdf_write attribute", fp)
	}
	writing, ok := fp.Attribute("writing")
	if !ok {
		return fmt.Errorf("node %s has no writing attribute", fp)
	}

	if err := write.Write(ctx, true); err != nil {
		return err
	}
	return attr.WaitForValue(ctx, writing, true, timeout)
}

// StopAcquisition disables HDF writing and blocks until every process has
// stopped, or timeout.
func StopAcquisition(ctx context.Context, fp *controller.Node, timeout time.Duration) error {
	write, ok := fp.Attribute("hdf_write")
	if !ok {
		return fmt.Errorf("node %s has no hdf_write attribute", fp)
	}
	writing, ok := fp.Attribute("writing")
	if !ok {
		return fmt.Errorf("node %s has no writing attribute", fp)
	}

	if err := write.Write(ctx, false); err != nil {
		return err
	}
	return attr.WaitForValue(ctx, writing, false, timeout)
}
