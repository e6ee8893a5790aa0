// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics exposes Prometheus instrumentation for the adapter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequests counts control-server requests by method and outcome.
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aperture_backend_requests_total",
		Help: "Total control server requests by method and outcome",
	}, []string{"method", "outcome"})

	// BackendRequestDuration tracks control-server request latency.
	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aperture_backend_request_duration_seconds",
		Help:    "Control server request latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method"})

	// ScanFailures counts scan callback invocations that were skipped
	// because they returned an error.
	ScanFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aperture_scan_failures_total",
		Help: "Scan callback failures (tick skipped, scheduler continues)",
	}, []string{"scan"})

	// AggregateMemberFailures counts member failures inside fan-out writes
	// and summary reads.
	AggregateMemberFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aperture_aggregate_member_failures_total",
		Help: "Member operation failures inside fan-out/summary attribute I/O",
	}, []string{"strategy"})

	// TreeBuilds counts controller tree builds by outcome.
	TreeBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aperture_tree_builds_total",
		Help: "Controller tree builds by outcome",
	}, []string{"outcome"})
)
