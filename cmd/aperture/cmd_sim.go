// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/aperture-daq/aperture/pkg/logging"
	"github.com/aperture-daq/aperture/services/simulator"
)

func runSim(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "aperture-sim"})
	defer logger.Close()

	sim := simulator.New(logger)
	return sim.Run(simListen)
}
