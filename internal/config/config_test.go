// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "greyhound.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
paths:
  - /data
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.CacheBytes == 0 {
		t.Error("expected a non-zero default cacheBytes")
	}
	if cfg.ResourceTimeout != 30*time.Minute {
		t.Errorf("expected default resource timeout of 30m, got %v", cfg.ResourceTimeout)
	}
	if cfg.BufferPool.Count != 1024 {
		t.Errorf("expected default buffer pool count 1024, got %d", cfg.BufferPool.Count)
	}
	if cfg.BufferPool.DefaultCapacityRaw != 512*1024 {
		t.Errorf("expected default buffer capacity 512kb, got %d", cfg.BufferPool.DefaultCapacityRaw)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging info/json, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadConfig_ResourceTimeoutFloor(t *testing.T) {
	path := writeConfig(t, `
resourceTimeoutMinutes: 0.1
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ResourceTimeout != 30*time.Second {
		t.Errorf("expected resource timeout floored at 30s, got %v", cfg.ResourceTimeout)
	}
}

func TestLoadConfig_AuthCacheFloors(t *testing.T) {
	path := writeConfig(t, `
auth:
  path: https://auth.example.com/check
  cookies: session
  cacheMinutes: 0.1
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Auth == nil {
		t.Fatal("expected auth block to be populated")
	}
	if cfg.Auth.CacheGood != 60*time.Second || cfg.Auth.CacheBad != 60*time.Second {
		t.Errorf("expected auth TTLs floored at 60s, got good=%v bad=%v", cfg.Auth.CacheGood, cfg.Auth.CacheBad)
	}
	if len(cfg.Auth.Cookies) != 1 || cfg.Auth.Cookies[0] != "session" {
		t.Errorf("expected single cookie name 'session', got %v", cfg.Auth.Cookies)
	}
}

func TestLoadConfig_AuthCacheAsymmetric(t *testing.T) {
	path := writeConfig(t, `
auth:
  path: https://auth.example.com/check
  queryParams:
    - token
    - key
  cacheMinutes:
    good: 10
    bad: 2
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Auth.CacheGood != 10*time.Minute {
		t.Errorf("expected good TTL 10m, got %v", cfg.Auth.CacheGood)
	}
	if cfg.Auth.CacheBad != 2*time.Minute {
		t.Errorf("expected bad TTL 2m, got %v", cfg.Auth.CacheBad)
	}
	if len(cfg.Auth.QueryParams) != 2 {
		t.Errorf("expected 2 query params, got %v", cfg.Auth.QueryParams)
	}
}

func TestLoadConfig_AuthRequiresPath(t *testing.T) {
	path := writeConfig(t, `
auth:
  cookies: session
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error when auth.path is missing")
	}
}

func TestLoadConfig_SecurePortRequiresCerts(t *testing.T) {
	path := writeConfig(t, `
http:
  securePort: 8443
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error when securePort is set without keyFile/certFile")
	}
}

func TestLoadConfig_PrewarmRequiresSchedule(t *testing.T) {
	path := writeConfig(t, `
prewarm:
  resources: ["autzen"]
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error when prewarm is configured without a schedule")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/greyhound.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"1024":  1024,
		"1b":    1,
		"2kb":   2 * 1024,
		"3mb":   3 * 1024 * 1024,
		"1gb":   1 << 30,
		"  4KB": 4 * 1024,
	}

	for in, want := range cases {
		got, err := ParseByteSize(in)
		if err != nil {
			t.Errorf("ParseByteSize(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseByteSize_Invalid(t *testing.T) {
	if _, err := ParseByteSize(""); err == nil {
		t.Error("expected error for empty size")
	}
	if _, err := ParseByteSize("notanumber"); err == nil {
		t.Error("expected error for non-numeric size")
	}
}
