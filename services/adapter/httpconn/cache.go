// Copyright (C) 2025 Aperture DAQ (maintainers@aperture-daq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpconn

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aperture-daq/aperture/pkg/logging"
)

// TreeCache caches one subsystem's parameter tree so that polling many
// attributes costs one GET per update period instead of one per attribute.
//
// A read that finds the cache expired triggers a refresh of the whole
// subtree; concurrent readers share the in-flight refresh rather than
// issuing their own. Writes go straight to the server and patch the cached
// tree with the echoed value, so a read immediately after a write observes
// it without waiting for the next refresh.
type TreeCache struct {
	prefix string
	conn   *Connection
	logger *logging.Logger
	timer  *RequestTimer

	group singleflight.Group

	mu         sync.Mutex
	tree       map[string]any
	lastUpdate time.Time
}

// NewTreeCache creates a cache for the subtree rooted at prefix.
func NewTreeCache(prefix string, conn *Connection, logger *logging.Logger) *TreeCache {
	if logger == nil {
		logger = logging.Default()
	}
	return &TreeCache{
		prefix: prefix,
		conn:   conn,
		logger: logger.With("cache", prefix),
		timer:  NewRequestTimer(prefix, 100, logger),
	}
}

// Get returns the value at path (slash-separated, relative to the cache
// prefix), refreshing the tree first when updatePeriod is zero or the last
// refresh is older than updatePeriod.
func (c *TreeCache) Get(ctx context.Context, path string, updatePeriod time.Duration) (any, error) {
	if updatePeriod == 0 || c.expired(updatePeriod) {
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	value, err := resolve(strings.Split(path, "/"), c.tree)
	if err != nil {
		return nil, fmt.Errorf("%s not found under %s: %w", path, c.prefix, err)
	}
	return value, nil
}

// Put writes value to path and patches the cached tree with the echoed
// value from the response. The echo is stored as-is: if the server reports
// a different value than was written (it may clamp, or clear a related
// field), the cache reflects the server.
func (c *TreeCache) Put(ctx context.Context, path string, value any) (any, error) {
	response, err := c.conn.Put(ctx, c.prefix+"/"+path, value)
	if err != nil {
		return nil, err
	}

	elems := strings.Split(path, "/")
	echoed, ok := response[elems[len(elems)-1]]
	if !ok {
		// No echo for this parameter; assume the written value took.
		echoed = value
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tree != nil {
		if err := patch(elems, echoed, c.tree); err != nil {
			c.logger.Warn("failed to patch cached tree after put", "path", path, "error", err)
		}
	}
	return echoed, nil
}

// Invalidate drops the cached tree; the next read refreshes.
func (c *TreeCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = nil
	c.lastUpdate = time.Time{}
}

func (c *TreeCache) expired(updatePeriod time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdate.IsZero() || time.Since(c.lastUpdate) > updatePeriod
}

// refresh fetches the whole subtree once, shared across concurrent callers.
func (c *TreeCache) refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		// The flight is shared by every concurrent reader: detach it from
		// the triggering caller's context so one caller's cancellation
		// cannot fail the rest. The connection timeout still bounds it.
		ctx := context.WithoutCancel(ctx)

		var tree map[string]any
		err := c.timer.Time(func() error {
			var err error
			tree, err = c.conn.Get(ctx, c.prefix)
			return err
		})
		if err != nil {
			c.logger.Error("tree refresh failed", "error", err)
			return nil, err
		}

		c.mu.Lock()
		c.tree = tree
		c.lastUpdate = time.Now()
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// resolve walks elems down the tree, indexing lists by numeric segments.
func resolve(elems []string, node any) (any, error) {
	if len(elems) == 0 {
		return node, nil
	}

	head, rest := elems[0], elems[1:]
	switch n := node.(type) {
	case map[string]any:
		child, ok := n[head]
		if !ok {
			return nil, fmt.Errorf("no key %q", head)
		}
		return resolve(rest, child)
	case []any:
		index, err := strconv.Atoi(head)
		if err != nil || index < 0 || index >= len(n) {
			return nil, fmt.Errorf("no index %q", head)
		}
		return resolve(rest, n[index])
	default:
		return nil, fmt.Errorf("%q is a leaf, cannot descend to %q", head, strings.Join(elems, "/"))
	}
}

// patch sets value at elems in the tree, creating nothing: a missing
// intermediate node is an error so a stale cache is never grown blindly.
func patch(elems []string, value any, node any) error {
	if len(elems) == 1 {
		switch n := node.(type) {
		case map[string]any:
			n[elems[0]] = value
			return nil
		case []any:
			index, err := strconv.Atoi(elems[0])
			if err != nil || index < 0 || index >= len(n) {
				return fmt.Errorf("no index %q", elems[0])
			}
			n[index] = value
			return nil
		default:
			return fmt.Errorf("cannot set %q on a leaf", elems[0])
		}
	}

	head, rest := elems[0], elems[1:]
	switch n := node.(type) {
	case map[string]any:
		child, ok := n[head]
		if !ok {
			return fmt.Errorf("no key %q", head)
		}
		return patch(rest, value, child)
	case []any:
		index, err := strconv.Atoi(head)
		if err != nil || index < 0 || index >= len(n) {
			return fmt.Errorf("no index %q", head)
		}
		return patch(rest, value, n[index])
	default:
		return fmt.Errorf("%q is a leaf", head)
	}
}
