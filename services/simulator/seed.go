// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulator

import "fmt"

func intLeaf(v int, writeable bool) *leaf {
	return &leaf{value: v, writeable: writeable, typeName: "int"}
}

func floatLeaf(v float64, writeable bool) *leaf {
	return &leaf{value: v, writeable: writeable, typeName: "float"}
}

func boolLeaf(v bool, writeable bool) *leaf {
	return &leaf{value: v, writeable: writeable, typeName: "bool"}
}

func strLeaf(v string, writeable bool) *leaf {
	return &leaf{value: v, writeable: writeable, typeName: "str"}
}

func enumLeaf(v int, allowed map[string]any) *leaf {
	return &leaf{value: v, writeable: true, typeName: "int", allowed: allowed}
}

// defaultSubsystems seeds the trees a small two-node acquisition stack
// reports: frame processor and receiver with two processes each, a meta
// writer and a detector.
func defaultSubsystems() map[string]map[string]any {
	return map[string]map[string]any{
		"fp": {
			"module": "FrameProcessorAdapter",
			"value":  []any{fpProcess(0), fpProcess(1)},
		},
		"fr": {
			"module": "FrameReceiverAdapter",
			"value":  []any{frProcess(0), frProcess(1)},
		},
		"mw": {
			"module": "MetaListenerAdapter",
			"status": map[string]any{
				"writing": boolLeaf(false, false),
			},
			"config": map[string]any{
				"acquisition_id": strLeaf("", true),
				"directory":      strLeaf("/tmp", true),
				"file_prefix":    strLeaf("run", true),
				"stop":           boolLeaf(false, true),
			},
		},
		"detector": {
			"status": map[string]any{
				"temperature": floatLeaf(24.5, false),
			},
			"config": map[string]any{
				"exposure": floatLeaf(0.01, true),
				"frames":   intLeaf(1000, true),
				"mode":     enumLeaf(0, map[string]any{"0": "idle", "1": "acquire"}),
			},
		},
	}
}

func fpProcess(rank int) map[string]any {
	return map[string]any{
		"status": map[string]any{
			"hdf": map[string]any{
				"frames_written": intLeaf(0, false),
				"writing":        boolLeaf(false, false),
				"file_path":      strLeaf("", false),
			},
		},
		"config": map[string]any{
			"rank":          intLeaf(rank, true),
			"number":        intLeaf(2, true),
			"ctrl_endpoint": strLeaf(fmt.Sprintf("tcp://127.0.0.1:%d", 5004+rank*1000), true),
			"hdf": map[string]any{
				"frames": intLeaf(0, true),
				"write":  boolLeaf(false, true),
			},
		},
	}
}

func frProcess(rank int) map[string]any {
	return map[string]any{
		"status": map[string]any{
			"buffers": map[string]any{
				"empty":  intLeaf(290, false),
				"mapped": intLeaf(0, false),
			},
			"frames": map[string]any{
				"received": intLeaf(0, false),
				"dropped":  intLeaf(0, false),
			},
		},
		"config": map[string]any{
			"ctrl_endpoint":  strLeaf(fmt.Sprintf("tcp://127.0.0.1:%d", 5000+rank*1000), true),
			"frames_timeout": intLeaf(1000, true),
		},
	}
}
