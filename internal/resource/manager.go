// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package resource implements the process-wide TimedReader cache (Manager)
// and the per-request Resource handle borrowed from it.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hobu/greyhound/internal/apierr"
	"github.com/hobu/greyhound/internal/auth"
	"github.com/hobu/greyhound/internal/config"
	"github.com/hobu/greyhound/internal/reader"
	"github.com/hobu/greyhound/internal/reader/memreader"
	"github.com/hobu/greyhound/internal/reader/s3source"
	"github.com/hobu/greyhound/internal/streaming"
)

// Manager is the process-wide cache of TimedReaders with idle eviction.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger

	cache      *reader.CacheBudget
	auth       *auth.Cache
	bufferPool *streaming.BufferPool
	stagingDir string

	mu      sync.Mutex
	readers map[string]*TimedReader

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewManager constructs a Manager from cfg. When cfg.Auth is non-nil, an
// auth.Cache is built and consulted by every Get call.
func NewManager(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	stagingDir, err := os.MkdirTemp("", "greyhound-s3-*")
	if err != nil {
		return nil, fmt.Errorf("creating s3 staging dir: %w", err)
	}

	m := &Manager{
		cfg:        cfg,
		logger:     logger,
		cache:      reader.NewCacheBudget(cfg.CacheBytes),
		bufferPool: streaming.NewBufferPool(cfg.BufferPool.Count, int(cfg.BufferPool.DefaultCapacityRaw)),
		stagingDir: stagingDir,
		readers:    make(map[string]*TimedReader),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	if cfg.Auth != nil {
		m.auth = auth.New(auth.Config{
			Path:        cfg.Auth.Path,
			Cookies:     cfg.Auth.Cookies,
			QueryParams: cfg.Auth.QueryParams,
			CacheGood:   cfg.Auth.CacheGood,
			CacheBad:    cfg.Auth.CacheBad,
		}, logger)
	}

	return m, nil
}

// Headers returns the fixed response header map to merge into every reply.
func (m *Manager) Headers() map[string]string { return m.cfg.HTTP.Headers }

// BufferPool exposes the shared BufferPool for /read streaming.
func (m *Manager) BufferPool() *streaming.BufferPool { return m.bufferPool }

// ChunkThreshold returns the configured Chunker flush threshold in bytes.
func (m *Manager) ChunkThreshold() int { return int(m.cfg.BufferPool.ChunkThresholdRaw) }

// Throttle returns the configured throttle settings.
func (m *Manager) Throttle() config.ThrottleConfig { return m.cfg.Throttle }

// Rasterize reports whether the legacy raster query extension is enabled.
func (m *Manager) Rasterize() bool { return m.cfg.Rasterize.Enabled }

// Cache exposes the process-wide cache budget, consulted by the /health
// endpoint.
func (m *Manager) Cache() *reader.CacheBudget { return m.cache }

// Get resolves name to a Resource, authorizing the request first when Auth
// is configured. It returns apierr.NotFound when no configured search path
// resolves the name, and an *apierr.Error from Auth on a non-2xx upstream
// decision. On success, the returned release function must be called
// exactly once when the caller is done with the Resource; on error it is
// nil.
func (m *Manager) Get(ctx context.Context, r *http.Request, name string) (*Resource, func(), error) {
	if err := validatePathComponent(name, "resource name"); err != nil {
		return nil, nil, apierr.BadRequest("%v", err)
	}

	if m.auth != nil {
		if err := m.auth.Authorize(ctx, r, name); err != nil {
			return nil, nil, err
		}
	}

	tr := m.timedReader(name)
	release := tr.Borrow()

	if _, err := tr.Get(ctx); err != nil {
		release()
		return nil, nil, apierr.NotFound("resource %q not found", name)
	}
	tr.Touch()

	return &Resource{name: name, readers: []*TimedReader{tr}, manager: m}, release, nil
}

// Touch constructs (if needed) and touches name without going through
// Auth or returning a Resource — used by the prewarm scheduler to warm a
// reader ahead of first request.
func (m *Manager) Touch(ctx context.Context, name string) error {
	tr := m.timedReader(name)
	release := tr.Borrow()
	defer release()

	if _, err := tr.Get(ctx); err != nil {
		return fmt.Errorf("prewarming %q: %w", name, err)
	}
	tr.Touch()
	return nil
}

func (m *Manager) timedReader(name string) *TimedReader {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, ok := m.readers[name]
	if !ok {
		tr = newTimedReader(m, name)
		m.readers[name] = tr
	}
	return tr
}

// open attempts each configured search path in order, returning the first
// Reader that resolves. Failure of any one path is logged and the next is
// tried.
func (m *Manager) open(ctx context.Context, name string) (reader.Reader, error) {
	for _, root := range m.cfg.Paths {
		if bucket, prefix, ok := s3source.ParsePath(root); ok {
			src, err := s3source.New(ctx, bucket, prefix, m.stagingDir)
			if err != nil {
				m.logger.Warn("s3 source unavailable", "path", root, "error", err)
				continue
			}
			dir, err := src.Resolve(ctx, name)
			if err != nil {
				m.logger.Debug("search path miss", "path", root, "resource", name, "error", err)
				continue
			}
			r, err := memreader.Open(dir)
			if err != nil {
				m.logger.Debug("search path miss", "path", dir, "resource", name, "error", err)
				continue
			}
			return r, nil
		}

		base := expandHome(root)
		dir := filepath.Join(base, name)
		if err := validatePathInBaseDir(base, dir); err != nil {
			m.logger.Warn("rejected resource path outside base directory", "path", dir, "resource", name, "error", err)
			continue
		}
		r, err := memreader.Open(dir)
		if err != nil {
			m.logger.Debug("search path miss", "path", dir, "resource", name, "error", err)
			continue
		}
		return r, nil
	}

	return nil, fmt.Errorf("no configured path resolved resource %q", name)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Start launches the sweeper goroutine, which evicts idle TimedReaders
// every ResourceTimeout interval.
func (m *Manager) Start() {
	go func() {
		ticker := time.NewTicker(m.cfg.ResourceTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stopCh:
				close(m.doneCh)
				return
			}
		}
	}()
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, tr := range m.readers {
		if tr.Exists() && tr.Since() > m.cfg.ResourceTimeout && !tr.Borrowed() {
			tr.Reset()
			delete(m.readers, name)
			m.logger.Info("evicted idle resource", "resource", name)
		}
	}
}

// Shutdown signals the sweeper to exit and waits for it to finish, then
// removes the S3 staging directory.
func (m *Manager) Shutdown() {
	close(m.stopCh)
	<-m.doneCh
	_ = os.RemoveAll(m.stagingDir)
}
