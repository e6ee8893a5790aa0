// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpconn

import (
	"math"
	"sync"
	"time"

	"github.com/aperture-daq/aperture/pkg/logging"
)

// RequestTimer keeps a rolling window of request latencies for one subtree
// and periodically logs mean and standard deviation at the Trace tier.
type RequestTimer struct {
	name       string
	numSamples int
	logger     *logging.Logger

	mu      sync.Mutex
	samples []float64
	next    int
	count   int
}

// NewRequestTimer creates a timer logging stats every numSamples/2 samples.
func NewRequestTimer(name string, numSamples int, logger *logging.Logger) *RequestTimer {
	if numSamples < 2 {
		numSamples = 2
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RequestTimer{
		name:       name,
		numSamples: numSamples,
		logger:     logger,
		samples:    make([]float64, 0, numSamples),
	}
}

// Time runs fn and records its duration.
func (t *RequestTimer) Time(fn func() error) error {
	start := time.Now()
	err := fn()
	t.AddSample(float64(time.Since(start).Microseconds()) / 1000.0)
	return err
}

// AddSample records one latency sample in milliseconds.
func (t *RequestTimer) AddSample(ms float64) {
	t.mu.Lock()

	if len(t.samples) < t.numSamples {
		t.samples = append(t.samples, ms)
	} else {
		t.samples[t.next] = ms
		t.next = (t.next + 1) % t.numSamples
	}
	t.count++

	logNow := t.count%(t.numSamples/2) == 0
	var mean, stddev float64
	if logNow {
		mean, stddev = stats(t.samples)
	}
	t.mu.Unlock()

	if logNow {
		t.logger.Trace("request timer",
			"name", t.name,
			"mean_ms", mean,
			"stddev_ms", stddev,
			"samples", t.count,
		)
	}
}

func stats(samples []float64) (mean, stddev float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean = sum / float64(len(samples))

	if len(samples) < 2 {
		return mean, 0
	}
	var variance float64
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	return mean, math.Sqrt(variance / float64(len(samples)-1))
}
