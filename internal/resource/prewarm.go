// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package resource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hobu/greyhound/internal/config"
)

// Prewarm runs a cron-scheduled sweep that touches a configured set of
// resources so they're constructed ahead of first request, distinct from
// the idle-eviction sweeper. A single recurring job covers the whole
// resource list since there is exactly one schedule to honor.
type Prewarm struct {
	cron      *cron.Cron
	manager   *Manager
	logger    *slog.Logger
	resources []string
}

// NewPrewarm builds a Prewarm sweep from cfg, registering a single cron
// job against cfg.Schedule.
func NewPrewarm(cfg *config.PrewarmConfig, manager *Manager, logger *slog.Logger) (*Prewarm, error) {
	p := &Prewarm{
		cron:      cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)))),
		manager:   manager,
		logger:    logger,
		resources: cfg.Resources,
	}

	if _, err := p.cron.AddFunc(cfg.Schedule, p.run); err != nil {
		return nil, fmt.Errorf("scheduling prewarm %q: %w", cfg.Schedule, err)
	}

	return p, nil
}

// Start begins the cron schedule.
func (p *Prewarm) Start() {
	p.logger.Info("prewarm scheduler started", "resources", p.resources)
	p.cron.Start()
}

// Stop waits (up to ctx's deadline) for the scheduler to finish any
// in-flight run.
func (p *Prewarm) Stop(ctx context.Context) {
	stopCtx := p.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		p.logger.Warn("prewarm scheduler stop timed out")
	}
}

func (p *Prewarm) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, name := range p.resources {
		start := time.Now()
		if err := p.manager.Touch(ctx, name); err != nil {
			p.logger.Warn("prewarm failed", "resource", name, "error", err)
			continue
		}
		p.logger.Info("prewarmed resource", "resource", name, "duration", time.Since(start))
	}
}
