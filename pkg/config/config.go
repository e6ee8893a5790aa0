// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the aperture YAML configuration.
//
// The file lives at the path given on the command line (default
// "aperture.yaml" in the working directory) and is created with defaults on
// first run, so a bare `aperture serve` against a local control server works
// without any setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendConfig identifies the control server to adapt.
type BackendConfig struct {
	// Host is the IP or hostname of the control server.
	Host string `yaml:"host"`

	// Port is the control server HTTP port.
	Port int `yaml:"port"`

	// APIPrefix is the versioned API root, e.g. "api/0.1".
	APIPrefix string `yaml:"api_prefix"`

	// Timeout bounds each backend request. Zero means 10s.
	Timeout time.Duration `yaml:"timeout"`
}

// PollConfig controls periodic refresh behavior.
type PollConfig struct {
	// UpdatePeriod is how long a cached subsystem tree stays fresh before a
	// read triggers a refresh. Zero disables caching (every read fetches).
	UpdatePeriod time.Duration `yaml:"update_period"`

	// ScanPeriod is the default period for registered scan callbacks.
	ScanPeriod time.Duration `yaml:"scan_period"`
}

// LoggingConfig mirrors pkg/logging.Config.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address for the /metrics endpoint. Empty disables it.
	Listen string `yaml:"listen"`
}

// Config is the root configuration document.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Poll    PollConfig    `yaml:"poll"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns the configuration written on first run.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			Host:      "127.0.0.1",
			Port:      8888,
			APIPrefix: "api/0.1",
			Timeout:   10 * time.Second,
		},
		Poll: PollConfig{
			UpdatePeriod: 200 * time.Millisecond,
			ScanPeriod:   time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Listen: ""},
	}
}

// Validate checks required fields and fills zero durations with defaults.
func (c *Config) Validate() error {
	if c.Backend.Host == "" {
		return fmt.Errorf("backend.host required")
	}
	if c.Backend.Port <= 0 {
		return fmt.Errorf("backend.port required (must be > 0)")
	}
	if c.Backend.APIPrefix == "" {
		return fmt.Errorf("backend.api_prefix required")
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 10 * time.Second
	}
	if c.Poll.ScanPeriod == 0 {
		c.Poll.ScanPeriod = time.Second
	}
	return nil
}

// Load reads the config at path, creating it with defaults if missing.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
