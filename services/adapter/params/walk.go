// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package params

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// moduleKey is the tree key a control server uses to report the component
// type owning a subtree. The builder dispatches on its value.
const moduleKey = "module"

// Walk flattens a decoded parameter tree into descriptors.
//
// Leaves carrying a metadata object ("writeable" + "type" keys) become typed
// descriptors. Legacy leaves without metadata get inferred metadata: the type
// from the value itself and writeability from a "config" segment in the
// path. Intermediate nodes with a "module" entry yield a marker descriptor
// for dispatch. Keys at each level are visited in sorted order so repeated
// fetches of the same tree produce identical sequences.
func Walk(tree map[string]any) ([]Parameter, error) {
	return walk(tree, nil)
}

func isMetadataObject(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, hasWriteable := m["writeable"]
	_, hasType := m["type"]
	return hasWriteable && hasType
}

func walk(tree map[string]any, path []string) ([]Parameter, error) {
	var parameters []Parameter

	keys := make([]string, 0, len(tree))
	for key := range tree {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		value := tree[key]
		nodePath := append(slices.Clone(path), key)

		if key == moduleKey {
			if name, ok := value.(string); ok {
				parameters = append(parameters, Parameter{URI: slices.Clone(path), Module: name})
				continue
			}
		}

		switch node := value.(type) {
		case map[string]any:
			if isMetadataObject(node) {
				metadata, err := parseMetadata(node)
				if err != nil {
					return nil, fmt.Errorf("parameter %v: %w", nodePath, err)
				}
				parameters = append(parameters, Parameter{URI: nodePath, Metadata: metadata})
				continue
			}
			children, err := walk(node, nodePath)
			if err != nil {
				return nil, err
			}
			parameters = append(parameters, children...)

		case []any:
			if len(node) == 0 {
				// Parameters with an empty list value are excluded.
				continue
			}
			if allMaps(node) {
				// N identical subtrees, one per underlying process.
				for idx, subNode := range node {
					children, err := walk(subNode.(map[string]any), append(slices.Clone(nodePath), strconv.Itoa(idx)))
					if err != nil {
						return nil, err
					}
					parameters = append(parameters, children...)
				}
				continue
			}
			if slices.Contains(nodePath, "config") {
				// Split config lists into separate parameters so each
				// element can be set individually.
				for idx, element := range node {
					elementPath := append(slices.Clone(nodePath), strconv.Itoa(idx))
					parameters = append(parameters, Parameter{
						URI:      elementPath,
						Metadata: inferMetadata(element, elementPath),
					})
				}
				continue
			}
			// Read-only lists are flattened to a display string.
			parameters = append(parameters, Parameter{
				URI:      nodePath,
				Metadata: inferMetadata(fmt.Sprintf("%v", node), nodePath),
			})

		default:
			parameters = append(parameters, Parameter{
				URI:      nodePath,
				Metadata: inferMetadata(value, nodePath),
			})
		}
	}

	return parameters, nil
}

func allMaps(elements []any) bool {
	for _, element := range elements {
		if _, ok := element.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func parseMetadata(node map[string]any) (Metadata, error) {
	typeName, ok := node["type"].(string)
	if !ok {
		return Metadata{}, fmt.Errorf("metadata type is %T, expected string", node["type"])
	}
	valueType := ParseValueType(typeName)
	if valueType == Unknown {
		return Metadata{}, fmt.Errorf("unsupported parameter type %q", typeName)
	}

	writeable, ok := node["writeable"].(bool)
	if !ok {
		return Metadata{}, fmt.Errorf("metadata writeable is %T, expected bool", node["writeable"])
	}

	metadata := Metadata{
		Value:     node["value"],
		Writeable: writeable,
		Type:      valueType,
	}

	if raw, ok := node["allowed_values"].(map[string]any); ok {
		metadata.AllowedValues = make(map[int]string, len(raw))
		for key, label := range raw {
			index, err := strconv.Atoi(key)
			if err != nil {
				return Metadata{}, fmt.Errorf("allowed_values key %q is not an index", key)
			}
			name, ok := label.(string)
			if !ok {
				return Metadata{}, fmt.Errorf("allowed_values label for %q is %T, expected string", key, label)
			}
			metadata.AllowedValues[index] = name
		}
		metadata.Type = Enum
	}

	for key, value := range node {
		switch key {
		case "value", "writeable", "type", "allowed_values":
		default:
			if metadata.Extra == nil {
				metadata.Extra = make(map[string]any)
			}
			metadata.Extra[key] = value
		}
	}

	return metadata, nil
}

// inferMetadata builds metadata for a parameter that did not report any,
// from its value and its position: anything under a "config" segment is
// writeable, everything else is read-only.
func inferMetadata(value any, uri []string) Metadata {
	return Metadata{
		Value:     value,
		Writeable: slices.Contains(uri, "config"),
		Type:      inferType(value),
	}
}

func inferType(value any) ValueType {
	switch v := value.(type) {
	case bool:
		return Bool
	case string:
		return String
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return Int
		}
		return Float
	case int, int64:
		return Int
	case float64:
		return Float
	default:
		return String
	}
}
