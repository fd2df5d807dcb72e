// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package auth caches upstream authorization decisions keyed by a
// composite identifier derived from request cookies and query parameters,
// using a coarse map lock plus a per-entry mutex so a slow upstream check
// for one identity never blocks lookups for another.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hobu/greyhound/internal/apierr"
)

// Config configures the Cache. CacheGood/CacheBad are expected to already
// be floored at 60s by internal/config.
type Config struct {
	Path        string
	Cookies     []string
	QueryParams []string
	CacheGood   time.Duration
	CacheBad    time.Duration
}

// entry is one cached (identity, resource) authorization decision. Its own
// mutex serializes concurrent callers for the same identity/resource pair
// without holding the Cache's coarse lock during the (potentially slow)
// upstream check.
type entry struct {
	mu          sync.Mutex
	lastChecked time.Time
	lastStatus  int
}

// Cache is the process-wide authorization decision cache.
type Cache struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	mu      sync.Mutex
	entries map[string]*entry
}

// New constructs a Cache. A nil Config pointer at the call site means auth
// is disabled entirely; callers are expected to skip invoking Cache
// altogether in that case rather than constructing one.
func New(cfg Config, logger *slog.Logger) *Cache {
	return &Cache{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: 10 * time.Second},
		entries: make(map[string]*entry),
	}
}

// Authorize checks one incoming request against a named resource,
// consulting the cache before making an upstream call. It returns nil when
// authorized, or an *apierr.Error (Unauthorized or Internal) otherwise.
func (c *Cache) Authorize(ctx context.Context, r *http.Request, resourceName string) error {
	key := c.identify(r) + "|" + resourceName

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	ttl := c.cfg.CacheBad
	if isOK(e.lastStatus) {
		ttl = c.cfg.CacheGood
	}

	if e.lastChecked.IsZero() || time.Since(e.lastChecked) > ttl {
		status, err := c.check(ctx, r)
		if err != nil {
			return apierr.Internal(err, "auth upstream check failed")
		}
		e.lastStatus = status
		e.lastChecked = time.Now()
		c.logger.Debug("auth checked", "resource", resourceName, "status", status)
	}

	if !isOK(e.lastStatus) {
		return apierr.Unauthorized("not authorized")
	}
	return nil
}

// identify builds the composite identity string: the configured cookie
// values followed by the configured query parameter values, joined by
// "-". A missing value contributes an empty segment rather than being
// omitted, so two requests differing only in which fields are present
// still hash to distinct identities.
func (c *Cache) identify(r *http.Request) string {
	parts := make([]string, 0, len(c.cfg.Cookies)+len(c.cfg.QueryParams))

	for _, name := range c.cfg.Cookies {
		v := ""
		if ck, err := r.Cookie(name); err == nil {
			v = ck.Value
		}
		parts = append(parts, v)
	}
	for _, name := range c.cfg.QueryParams {
		parts = append(parts, r.URL.Query().Get(name))
	}

	return strings.Join(parts, "-")
}

// check performs the upstream GET, forwarding the original request's
// headers and query string.
func (c *Cache) check(ctx context.Context, r *http.Request) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Path, nil)
	if err != nil {
		return 0, fmt.Errorf("building auth request: %w", err)
	}
	req.Header = r.Header.Clone()
	req.URL.RawQuery = r.URL.RawQuery

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling auth endpoint %s: %w", c.cfg.Path, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

func isOK(status int) bool {
	return status >= 200 && status < 300
}
