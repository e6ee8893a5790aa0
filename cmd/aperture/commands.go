// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// --- Global Command Variables ---
var (
	configPath  string
	traceStdout bool   // serve: export spans to stdout
	simListen   string // sim: listen address

	rootCmd = &cobra.Command{
		Use:     "aperture",
		Short:   "A control-plane adapter for introspectable acquisition services",
		Long: `Aperture connects to a control server, introspects the parameter
trees of its subsystems and exposes them as a statically reconciled
controller/attribute tree.`,
		Version: version,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Connect to the control server and run the adapter",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	simCmd = &cobra.Command{
		Use:   "sim",
		Short: "Run an in-memory control-server simulator",
		RunE:  runSim, // Defined in cmd_sim.go
	}

	treeCmd = &cobra.Command{
		Use:   "tree [subsystem...]",
		Short: "Fetch and print the introspected parameter schema",
		RunE:  runTree, // Defined in cmd_tree.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "aperture.yaml", "path to the configuration file")
	serveCmd.Flags().BoolVar(&traceStdout, "trace-stdout", false, "export backend request spans to stdout")
	simCmd.Flags().StringVar(&simListen, "listen", "127.0.0.1:8888", "simulator listen address")

	rootCmd.AddCommand(serveCmd, simCmd, treeCmd)
}
