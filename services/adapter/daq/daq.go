// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package daq provides specialized controller nodes for the acquisition
// subsystems a control server reports: frame processors, frame receivers
// and the meta writer. The constructors split per-process subtrees into
// indexed child nodes, fan shared configuration out across processes and
// summarize per-process status into single parent attributes.
package daq

import (
	"slices"
	"strconv"
	"strings"

	"github.com/aperture-daq/aperture/pkg/logging"
	"github.com/aperture-daq/aperture/services/adapter/controller"
	"github.com/aperture-daq/aperture/services/adapter/params"
)

// Module identities reported by control-server adapters.
const (
	FrameProcessorModule = "FrameProcessorAdapter"
	FrameReceiverModule  = "FrameReceiverAdapter"
	MetaListenerModule   = "MetaListenerAdapter"
)

// DefaultRegistry returns the dispatch registry with every subsystem
// constructor bound. Deployments may override entries before building.
func DefaultRegistry() controller.Registry {
	return controller.Registry{
		FrameProcessorModule: NewFrameProcessor,
		FrameReceiverModule:  NewFrameReceiver,
		MetaListenerModule:   NewMetaWriter,
	}
}

// droppedLeaves are metadata leaves some backends report that carry no
// usable value and clash with reserved names.
var droppedLeaves = map[string]bool{
	"name":        true,
	"description": true,
}

// reduce strips the redundant status/config segments so attribute names
// read "hdf_frames_written" rather than "status_hdf_frames_written".
func reduce(segments []string) []string {
	var reduced []string
	for _, segment := range segments {
		if segment == "status" || segment == "config" {
			continue
		}
		reduced = append(reduced, segment)
	}
	return reduced
}

func isIndex(segment string) bool {
	_, err := strconv.Atoi(segment)
	return err == nil
}

// splitProcesses partitions descriptors into per-process groups keyed by
// the first numeric path segment, re-basing each descriptor's reduced path
// onto the segments after the index. Descriptors without an index segment
// are returned separately; they belong to the subsystem node itself.
func splitProcesses(descriptors []params.Parameter) (map[int][]params.Parameter, []params.Parameter) {
	processes := make(map[int][]params.Parameter)
	var rest []params.Parameter

	for _, d := range descriptors {
		rel := d.Path()
		at := slices.IndexFunc(rel, isIndex)
		if at < 0 {
			rest = append(rest, d)
			continue
		}
		index, _ := strconv.Atoi(rel[at])
		p := d
		p.SetPath(rel[at+1:])
		processes[index] = append(processes[index], p)
	}

	return processes, rest
}

// addLeaves turns descriptors into attributes on node, naming each by its
// reduced path. Reserved metadata leaves are dropped with a warning.
func addLeaves(node *controller.Node, b *controller.Builder, descriptors []params.Parameter, logger *logging.Logger) error {
	for _, d := range descriptors {
		reduced := reduce(d.Path())
		if len(reduced) == 0 {
			continue
		}
		if len(reduced) == 1 && droppedLeaves[reduced[0]] {
			logger.Warn("dropping reserved parameter leaf", "uri", strings.Join(d.URI, "/"))
			continue
		}
		p := d
		p.SetPath(reduced)
		if err := node.AddAttribute(b.NewAttribute(p)); err != nil {
			return err
		}
	}
	return nil
}

func sortedIndices(processes map[int][]params.Parameter) []int {
	indices := make([]int, 0, len(processes))
	for index := range processes {
		indices = append(indices, index)
	}
	slices.Sort(indices)
	return indices
}
