// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpconn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetWithinPeriod(t *testing.T) {
	var gets atomic.Int64
	conn := newTestConnection(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		w.Write([]byte(`{"status": {"frames": 5, "writing": true}}`))
	}))

	cache := NewTreeCache("fp", conn, nil)
	ctx := context.Background()

	frames, err := cache.Get(ctx, "status/frames", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, json.Number("5"), frames)

	// A second read within the period is served from the cache.
	writing, err := cache.Get(ctx, "status/writing", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, true, writing)
	assert.Equal(t, int64(1), gets.Load())
}

func TestCacheZeroPeriodAlwaysFetches(t *testing.T) {
	var gets atomic.Int64
	conn := newTestConnection(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		fmt.Fprintf(w, `{"status": {"frames": %d}}`, gets.Load())
	}))

	cache := NewTreeCache("fp", conn, nil)
	ctx := context.Background()

	first, err := cache.Get(ctx, "status/frames", 0)
	require.NoError(t, err)
	second, err := cache.Get(ctx, "status/frames", 0)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, int64(2), gets.Load())
}

func TestCacheExpiry(t *testing.T) {
	var gets atomic.Int64
	conn := newTestConnection(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		w.Write([]byte(`{"status": {"frames": 5}}`))
	}))

	cache := NewTreeCache("fp", conn, nil)
	ctx := context.Background()

	_, err := cache.Get(ctx, "status/frames", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = cache.Get(ctx, "status/frames", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gets.Load())
}

func TestCachePutPatchesTree(t *testing.T) {
	conn := newTestConnection(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"config": {"frames": 10}}`))
		case http.MethodPut:
			assert.Equal(t, "/api/0.1/fp/config/frames", r.URL.Path)
			w.Write([]byte(`{"frames": 200}`))
		}
	}))

	cache := NewTreeCache("fp", conn, nil)
	ctx := context.Background()

	// Populate the cache, then write.
	_, err := cache.Get(ctx, "config/frames", time.Minute)
	require.NoError(t, err)

	echoed, err := cache.Put(ctx, "config/frames", 200)
	require.NoError(t, err)
	assert.Equal(t, json.Number("200"), echoed)

	// The cached tree reflects the echoed value without a refresh.
	value, err := cache.Get(ctx, "config/frames", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, json.Number("200"), value)
}

func TestCachePutServerError(t *testing.T) {
	conn := newTestConnection(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "invalid value"}`))
	}))

	cache := NewTreeCache("fp", conn, nil)

	_, err := cache.Put(context.Background(), "config/frames", -1)
	require.Error(t, err)
	var response *ResponseError
	assert.ErrorAs(t, err, &response)
}

func TestCacheMissingPath(t *testing.T) {
	conn := newTestConnection(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": {"frames": 5}}`))
	}))

	cache := NewTreeCache("fp", conn, nil)

	_, err := cache.Get(context.Background(), "status/missing", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status/missing not found")
}

func TestCacheListIndexing(t *testing.T) {
	conn := newTestConnection(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"config": {"rx_ports": [6000, 6001]}}`))
	}))

	cache := NewTreeCache("fr", conn, nil)

	value, err := cache.Get(context.Background(), "config/rx_ports/1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, json.Number("6001"), value)
}

func TestCacheInvalidate(t *testing.T) {
	var gets atomic.Int64
	conn := newTestConnection(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		w.Write([]byte(`{"status": {"frames": 5}}`))
	}))

	cache := NewTreeCache("fp", conn, nil)
	ctx := context.Background()

	_, err := cache.Get(ctx, "status/frames", time.Minute)
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Get(ctx, "status/frames", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gets.Load())
}

func TestCacheRefreshSurvivesCallerCancellation(t *testing.T) {
	var gets atomic.Int64
	entered := make(chan struct{})
	release := make(chan struct{})
	conn := newTestConnection(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		close(entered)
		<-release
		w.Write([]byte(`{"status": {"frames": 5}}`))
	}))

	cache := NewTreeCache("fp", conn, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan error, 2)
	go func() {
		_, err := cache.Get(ctx, "status/frames", time.Minute)
		results <- err
	}()
	<-entered

	// A second reader joins the in-flight refresh; cancelling the first
	// reader's context must not fail it.
	go func() {
		_, err := cache.Get(context.Background(), "status/frames", time.Minute)
		results <- err
	}()

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-results)
	require.NoError(t, <-results)
	assert.Equal(t, int64(1), gets.Load())
}

func TestRequestTimerStats(t *testing.T) {
	mean, stddev := stats([]float64{1, 2, 3})
	assert.InDelta(t, 2.0, mean, 1e-9)
	assert.InDelta(t, 1.0, stddev, 1e-9)

	mean, stddev = stats([]float64{5})
	assert.Equal(t, 5.0, mean)
	assert.Equal(t, 0.0, stddev)
}
