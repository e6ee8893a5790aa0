// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package httpconn talks to the control server's HTTP API: JSON GET/PUT on
// parameter paths and schema fetches that flatten a subtree into parameter
// descriptors.
//
// One Connection is shared by every attribute under a server. It holds no
// per-request state beyond the http.Client, which is safe for many
// concurrent outstanding requests, so no attribute-level locking happens
// here.
package httpconn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aperture-daq/aperture/pkg/logging"
	"github.com/aperture-daq/aperture/services/adapter/metrics"
	"github.com/aperture-daq/aperture/services/adapter/params"
)

// metadataAccept asks the server to annotate every leaf with its metadata
// object (type, writeability, allowed values).
const metadataAccept = "application/json;metadata=true"

const tracerName = "aperture/httpconn"

// Settings identifies a control server.
type Settings struct {
	Host      string
	Port      int
	APIPrefix string
	Timeout   time.Duration
}

// Connection is an HTTP client for one control server.
type Connection struct {
	settings Settings
	client   *http.Client
	logger   *logging.Logger
}

// New creates a Connection. A nil logger falls back to the default logger.
func New(settings Settings, logger *logging.Logger) *Connection {
	if logger == nil {
		logger = logging.Default()
	}
	timeout := settings.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Connection{
		settings: settings,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "httpconn"),
	}
}

// URL expands a URI relative to the API prefix into a full URL.
func (c *Connection) URL(uri string) string {
	return fmt.Sprintf("http://%s:%d/%s/%s", c.settings.Host, c.settings.Port, c.settings.APIPrefix, uri)
}

// Get performs a GET on uri and decodes the JSON object response. Numbers
// are decoded as json.Number so int parameters keep their type.
func (c *Connection) Get(ctx context.Context, uri string) (map[string]any, error) {
	return c.get(ctx, uri, false)
}

// GetMetadata performs a GET on uri requesting per-leaf metadata.
func (c *Connection) GetMetadata(ctx context.Context, uri string) (map[string]any, error) {
	return c.get(ctx, uri, true)
}

func (c *Connection) get(ctx context.Context, uri string, withMetadata bool) (map[string]any, error) {
	url := c.URL(uri)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "backend.get")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if withMetadata {
		req.Header.Set("Accept", metadataAccept)
	}

	body, err := c.do(req, "get")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tree, err := decodeObject(body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &MalformedSchemaError{URL: url, Err: err}
	}
	return tree, nil
}

// Put writes value to the parameter at uri and returns the response, which
// echoes the parameters whose values changed as a result. An error payload
// from the server is surfaced as a ResponseError.
func (c *Connection) Put(ctx context.Context, uri string, value any) (map[string]any, error) {
	url := c.URL(uri)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "backend.put")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value for %s: %w", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "put")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	response, err := decodeObject(body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &MalformedSchemaError{URL: url, Err: err}
	}
	if message, ok := response["error"].(string); ok {
		span.SetStatus(codes.Error, message)
		return nil, &ResponseError{URL: url, Message: message}
	}
	return response, nil
}

// Fetch queries the schema under base and flattens it into descriptors.
func (c *Connection) Fetch(ctx context.Context, base string) ([]params.Parameter, error) {
	tree, err := c.GetMetadata(ctx, base)
	if err != nil {
		return nil, err
	}

	descriptors, err := params.Walk(tree)
	if err != nil {
		return nil, &MalformedSchemaError{URL: c.URL(base), Err: err}
	}

	c.logger.Debug("fetched schema", "base", base, "parameters", len(descriptors))
	return descriptors, nil
}

// Subsystems returns the list of subsystem names the server exposes, from
// the "adapters" endpoint.
func (c *Connection) Subsystems(ctx context.Context) ([]string, error) {
	response, err := c.Get(ctx, "adapters")
	if err != nil {
		return nil, err
	}

	raw, ok := response["adapters"].([]any)
	if !ok {
		return nil, &MalformedSchemaError{
			URL: c.URL("adapters"),
			Err: fmt.Errorf("did not find an adapters list in response: %v", response),
		}
	}

	names := make([]string, 0, len(raw))
	for _, entry := range raw {
		name, ok := entry.(string)
		if !ok {
			return nil, &MalformedSchemaError{
				URL: c.URL("adapters"),
				Err: fmt.Errorf("received invalid adapters list: %v", raw),
			}
		}
		names = append(names, name)
	}
	return names, nil
}

// do executes the request with a request ID, records metrics and returns
// the response body. Network failures and non-success statuses map to the
// error taxonomy.
func (c *Connection) do(req *http.Request, method string) ([]byte, error) {
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	metrics.BackendRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())

	if err != nil {
		metrics.BackendRequests.WithLabelValues(method, "unreachable").Inc()
		return nil, &UnreachableError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(method, "unreachable").Inc()
		return nil, &UnreachableError{URL: req.URL.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.BackendRequests.WithLabelValues(method, "error").Inc()
		message := ""
		var payload map[string]any
		if json.Unmarshal(body, &payload) == nil {
			message, _ = payload["error"].(string)
		}
		return nil, &ResponseError{URL: req.URL.String(), Status: resp.StatusCode, Message: message}
	}

	metrics.BackendRequests.WithLabelValues(method, "ok").Inc()
	return body, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var tree map[string]any
	if err := decoder.Decode(&tree); err != nil {
		return nil, fmt.Errorf("got unexpected response: %w", err)
	}
	return tree, nil
}
