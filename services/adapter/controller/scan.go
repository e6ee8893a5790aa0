// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package controller

import (
	"context"
	"sync"
	"time"

	"github.com/aperture-daq/aperture/pkg/logging"
	"github.com/aperture-daq/aperture/services/adapter/metrics"
)

// Scan is a periodic update callback. An error skips the tick; it never
// stops the schedule.
type Scan func(ctx context.Context) error

type scanEntry struct {
	name   string
	period time.Duration
	scan   Scan
}

// Scanner runs registered callbacks at fixed periods, each on its own
// goroutine, independent of on-demand reads and writes. There is no
// ordering between different scans.
type Scanner struct {
	logger *logging.Logger

	mu      sync.Mutex
	entries []scanEntry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScanner creates a scanner. Scans are registered before Start.
func NewScanner(logger *logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scanner{logger: logger.With("component", "scanner")}
}

// Register adds a named scan with a fixed period. Registration after Start
// takes effect on the next Start.
func (s *Scanner) Register(name string, period time.Duration, scan Scan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, scanEntry{name: name, period: period, scan: scan})
}

// Start launches every registered scan. The scans run until Stop or until
// ctx is cancelled.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, entry := range s.entries {
		s.wg.Add(1)
		go s.run(ctx, entry)
	}
	s.logger.Info("scanner started", "scans", len(s.entries))
}

// Stop cancels all scans and waits for them to finish.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("scanner stopped")
}

func (s *Scanner) run(ctx context.Context, entry scanEntry) {
	defer s.wg.Done()

	ticker := time.NewTicker(entry.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := entry.scan(ctx); err != nil {
				// The failing tick is skipped; the schedule continues.
				metrics.ScanFailures.WithLabelValues(entry.name).Inc()
				s.logger.Warn("scan failed", "scan", entry.name, "error", err)
			}
		}
	}
}
