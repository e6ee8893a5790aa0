// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aperture-daq/aperture/pkg/config"
	"github.com/aperture-daq/aperture/services/adapter/httpconn"
)

func runTree(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	conn := httpconn.New(httpconn.Settings{
		Host:      cfg.Backend.Host,
		Port:      cfg.Backend.Port,
		APIPrefix: cfg.Backend.APIPrefix,
		Timeout:   cfg.Backend.Timeout,
	}, nil)

	names := args
	if len(names) == 0 {
		names, err = conn.Subsystems(cmd.Context())
		if err != nil {
			return err
		}
	}

	for _, name := range names {
		descriptors, err := conn.Fetch(cmd.Context(), name)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%d parameters)\n", name, len(descriptors))
		for _, d := range descriptors {
			if d.IsMarker() {
				fmt.Printf("  %s -> module %s\n", strings.Join(d.URI, "/"), d.Module)
				continue
			}
			access := "r"
			if d.Metadata.Writeable {
				access = "rw"
			}
			fmt.Printf("  %s  %s %s\n", strings.Join(d.URI, "/"), d.Metadata.Type, access)
		}
	}
	return nil
}
