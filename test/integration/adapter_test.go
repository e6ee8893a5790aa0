// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package integration exercises the full adapter flow against the
// in-memory control-server simulator: discovery, introspection, build,
// reconciliation, scanning and acquisition sequencing.
package integration

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-daq/aperture/pkg/config"
	"github.com/aperture-daq/aperture/services/adapter"
	"github.com/aperture-daq/aperture/services/adapter/attr"
	"github.com/aperture-daq/aperture/services/adapter/controller"
	"github.com/aperture-daq/aperture/services/adapter/daq"
	"github.com/aperture-daq/aperture/services/simulator"
)

func newTestConfig(t *testing.T, sim *simulator.Simulator) config.Config {
	t.Helper()
	server := httptest.NewServer(sim.Engine())
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Backend.Host = parsed.Hostname()
	cfg.Backend.Port = port
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Poll.UpdatePeriod = 0 // every read fetches
	cfg.Poll.ScanPeriod = 20 * time.Millisecond
	return cfg
}

func TestConnectBuildsReconciledTree(t *testing.T) {
	sim := simulator.New(nil)
	cfg := newTestConfig(t, sim)

	shape := &controller.Shape{
		Children: map[string]*controller.Shape{
			"fp": {TypeName: "FrameProcessor"},
			"fr": {TypeName: "FrameReceiver"},
			"mw": {TypeName: "MetaWriter"},
		},
	}

	a := adapter.New(cfg, daq.DefaultRegistry(), shape, nil)
	require.NoError(t, a.Connect(context.Background()))

	root := a.Root()
	require.NotNil(t, root)

	fp, ok := root.Child("fp")
	require.True(t, ok)
	_, ok = fp.Child("FP0")
	assert.True(t, ok)
	_, ok = fp.Child("FP1")
	assert.True(t, ok)

	// The detector has no module marker; it stays generic.
	detector, ok := root.Child("detector")
	require.True(t, ok)
	assert.Equal(t, "Controller", detector.TypeName())
}

func TestConnectFailsOnMissingDeclaredChild(t *testing.T) {
	sim := simulator.New(nil)
	cfg := newTestConfig(t, sim)

	shape := &controller.Shape{
		Children: map[string]*controller.Shape{
			"LOGS": {TypeName: "Controller"},
		},
	}

	a := adapter.New(cfg, daq.DefaultRegistry(), shape, nil)
	err := a.Connect(context.Background())
	require.Error(t, err)

	var mismatch *controller.SubControllerMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "LOGS", mismatch.Child)

	// No partially validated tree is exposed.
	assert.Nil(t, a.Root())
}

func TestConnectFailsOnUnreachableSubsystem(t *testing.T) {
	sim := simulator.New(nil)
	cfg := newTestConfig(t, sim)
	sim.SetFault("fr", simulator.FaultError)

	a := adapter.New(cfg, daq.DefaultRegistry(), nil, nil)
	err := a.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fr")
}

func TestFanOutWriteReachesEveryProcess(t *testing.T) {
	sim := simulator.New(nil)
	cfg := newTestConfig(t, sim)
	ctx := context.Background()

	a := adapter.New(cfg, daq.DefaultRegistry(), nil, nil)
	require.NoError(t, a.Connect(ctx))

	fp, _ := a.Root().Child("fp")
	frames, ok := fp.Attribute("hdf_frames")
	require.True(t, ok)
	require.NoError(t, frames.Write(ctx, 5000))

	for _, name := range []string{"FP0", "FP1"} {
		child, ok := fp.Child(name)
		require.True(t, ok)
		perProcess, ok := child.Attribute("hdf_frames")
		require.True(t, ok)
		value, err := perProcess.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), value, name)
	}
}

func TestAcquisitionSequencing(t *testing.T) {
	sim := simulator.New(nil)
	cfg := newTestConfig(t, sim)
	ctx := context.Background()

	a := adapter.New(cfg, daq.DefaultRegistry(), nil, nil)
	require.NoError(t, a.Connect(ctx))

	fp, _ := a.Root().Child("fp")

	writing, ok := fp.Attribute("writing")
	require.True(t, ok)
	value, err := writing.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, false, value)

	require.NoError(t, daq.StartAcquisition(ctx, fp, 2*time.Second))
	assert.Equal(t, true, writing.Get())

	require.NoError(t, daq.StopAcquisition(ctx, fp, 2*time.Second))
	assert.Equal(t, false, writing.Get())
}

func TestScansKeepValuesFresh(t *testing.T) {
	sim := simulator.New(nil)
	cfg := newTestConfig(t, sim)
	ctx := context.Background()

	a := adapter.New(cfg, daq.DefaultRegistry(), nil, nil)
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, a.Start(ctx))
	defer a.Stop()

	fp, _ := a.Root().Child("fp")
	fp0, _ := fp.Child("FP0")
	written, ok := fp0.Attribute("hdf_frames_written")
	require.True(t, ok)

	// Last-known values fill in without any explicit read.
	require.Eventually(t, func() bool {
		return written.Get() == int64(0)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestTraceToggleOnSubtree(t *testing.T) {
	sim := simulator.New(nil)
	cfg := newTestConfig(t, sim)
	ctx := context.Background()

	a := adapter.New(cfg, daq.DefaultRegistry(), nil, nil)
	require.NoError(t, a.Connect(ctx))

	mw, ok := a.Root().Child("mw")
	require.True(t, ok)
	mw.SetTrace(true)

	directory, ok := mw.Attribute("directory")
	require.True(t, ok)
	assert.True(t, directory.TraceEnabled())

	// Traced operations still behave identically.
	require.NoError(t, directory.Write(ctx, "/data"))
	value, err := directory.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data", value)

	mw.SetTrace(false)
	assert.False(t, directory.TraceEnabled())
}

func TestWaitForValueTimesOut(t *testing.T) {
	sim := simulator.New(nil)
	cfg := newTestConfig(t, sim)
	ctx := context.Background()

	a := adapter.New(cfg, daq.DefaultRegistry(), nil, nil)
	require.NoError(t, a.Connect(ctx))

	mw, _ := a.Root().Child("mw")
	writing, ok := mw.Attribute("writing")
	require.True(t, ok)

	err := attr.WaitForValue(ctx, writing, true, 300*time.Millisecond)
	require.Error(t, err)
	var timeout *attr.WaitTimeoutError
	assert.ErrorAs(t, err, &timeout)
}
