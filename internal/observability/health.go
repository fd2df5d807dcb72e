// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package observability exposes the process health endpoint. It is
// intentionally thin: the core's real operational signal is the Manager's
// cache budget, surfaced here alongside runtime and host stats.
package observability

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var startTime = time.Now()

// Version is populated via -ldflags at build time.
var Version = "dev"

// CacheStats is the subset of Manager state the health endpoint reports,
// decoupling this package from resource.Manager to avoid an import cycle.
type CacheStats interface {
	Used() int64
	Max() int64
}

// Response is the body of a GET /health reply.
type Response struct {
	Status  string       `json:"status"`
	Uptime  string       `json:"uptime"`
	Version string       `json:"version"`
	Go      string       `json:"go"`
	Runtime RuntimeStats `json:"runtime"`
	Host    HostStats    `json:"host"`
	Cache   *CacheStatsDTO `json:"cache,omitempty"`
}

// RuntimeStats reports Go-runtime-level process stats.
type RuntimeStats struct {
	GoRoutines  int     `json:"goRoutines"`
	HeapAllocMB float64 `json:"heapAllocMb"`
	HeapSysMB   float64 `json:"heapSysMb"`
	GCCycles    uint32  `json:"gcCycles"`
	CPUCores    int     `json:"cpuCores"`
}

// HostStats reports host-level stats via gopsutil, alongside the
// process-level runtime.MemStats figures in RuntimeStats.
type HostStats struct {
	CPUPercent float64 `json:"cpuPercent,omitempty"`
	MemUsedPct float64 `json:"memUsedPercent,omitempty"`
	MemTotalMB float64 `json:"memTotalMb,omitempty"`
}

// CacheStatsDTO reports the Manager's cache budget utilization.
type CacheStatsDTO struct {
	UsedBytes int64 `json:"usedBytes"`
	MaxBytes  int64 `json:"maxBytes"`
}

// Handler returns an http.HandlerFunc for GET /health. cache may be nil,
// in which case the response omits cache utilization.
func Handler(cache CacheStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		resp := Response{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: Version,
			Go:      runtime.Version(),
			Runtime: RuntimeStats{
				GoRoutines:  runtime.NumGoroutine(),
				HeapAllocMB: float64(memStats.HeapAlloc) / (1024 * 1024),
				HeapSysMB:   float64(memStats.HeapSys) / (1024 * 1024),
				GCCycles:    memStats.NumGC,
				CPUCores:    runtime.NumCPU(),
			},
			Host: hostStats(r),
		}

		if cache != nil {
			resp.Cache = &CacheStatsDTO{UsedBytes: cache.Used(), MaxBytes: cache.Max()}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(resp)
	}
}

// hostStats samples host-level CPU and memory via gopsutil. Sampling
// errors are swallowed and the corresponding fields left at zero: a health
// endpoint should never fail the request because a host stat was
// unavailable in a container.
func hostStats(r *http.Request) HostStats {
	var h HostStats

	if percents, err := cpu.PercentWithContext(r.Context(), 0, false); err == nil && len(percents) > 0 {
		h.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		h.MemUsedPct = vm.UsedPercent
		h.MemTotalMB = float64(vm.Total) / (1024 * 1024)
	}

	return h
}
