// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config loads and validates the Greyhound server configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration tree consumed by the core.
type Config struct {
	HTTP            HTTPConfig       `yaml:"http"`
	Paths           []string         `yaml:"paths"`
	CacheBytes      int64            `yaml:"cacheBytes"`
	ResourceTimeoutRaw float64       `yaml:"resourceTimeoutMinutes"`
	ResourceTimeout time.Duration    `yaml:"-"`
	Auth            *AuthConfig      `yaml:"auth"`
	Arbiter         map[string]any   `yaml:"arbiter"`
	BufferPool      BufferPoolConfig `yaml:"bufferPool"`
	Rasterize       RasterizeConfig  `yaml:"rasterize"`
	Prewarm         *PrewarmConfig   `yaml:"prewarm"`
	Throttle        ThrottleConfig   `yaml:"throttle"`
	Logging         LoggingConfig    `yaml:"logging"`
}

// HTTPConfig configures the listen ports and the fixed header set that
// the Manager injects into every response.
type HTTPConfig struct {
	Port         uint16            `yaml:"port"`
	SecurePort   uint16            `yaml:"securePort"`
	KeyFile      string            `yaml:"keyFile"`
	CertFile     string            `yaml:"certFile"`
	Headers      map[string]string `yaml:"headers"`
	AllowOrigins []string          `yaml:"allowOrigins"`
}

// AuthConfig configures the optional authorization sidecar.
type AuthConfig struct {
	Path            string    `yaml:"path"`
	Cookies         yamlList  `yaml:"cookies"`
	QueryParams     yamlList  `yaml:"queryParams"`
	CacheMinutes    yamlTTL   `yaml:"cacheMinutes"`
	CacheGood       time.Duration `yaml:"-"`
	CacheBad        time.Duration `yaml:"-"`
}

// BufferPoolConfig configures the BufferPool.
type BufferPoolConfig struct {
	Count           int    `yaml:"count"`
	DefaultCapacity string `yaml:"defaultCapacity"`
	DefaultCapacityRaw int64 `yaml:"-"`
	ChunkThreshold  string `yaml:"chunkThreshold"`
	ChunkThresholdRaw int64 `yaml:"-"`
}

// RasterizeConfig gates the legacy raster query modes.
type RasterizeConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PrewarmConfig schedules a cron-driven prewarm sweep.
type PrewarmConfig struct {
	Schedule  string   `yaml:"schedule"`
	Resources []string `yaml:"resources"`
}

// ThrottleConfig configures byte-rate limits applied to streamed responses.
type ThrottleConfig struct {
	BytesPerSecGlobal             int64 `yaml:"bytesPerSecGlobal"`
	BytesPerSecPerResource        int64 `yaml:"bytesPerSecPerResource"`
	MaxConcurrentReadsPerResource int   `yaml:"maxConcurrentReadsPerResource"`
}

// LoggingConfig configures internal/logging.NewLogger.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"filePath"`
}

// yamlList accepts either a single YAML string or a sequence of strings,
// matching the original's "cookies"/"queryParams" shape (auth.cpp).
type yamlList []string

func (l *yamlList) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		if single != "" {
			*l = []string{single}
		}
		return nil
	}

	var many []string
	if err := unmarshal(&many); err != nil {
		return fmt.Errorf("must be a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

// yamlTTL accepts either a single number of minutes (applied to both good
// and bad) or a {good, bad} object, matching auth.cpp's cacheMinutes shape.
type yamlTTL struct {
	Good float64
	Bad  float64
}

func (t *yamlTTL) UnmarshalYAML(unmarshal func(any) error) error {
	var scalar float64
	if err := unmarshal(&scalar); err == nil {
		t.Good, t.Bad = scalar, scalar
		return nil
	}

	var pair struct {
		Good float64 `yaml:"good"`
		Bad  float64 `yaml:"bad"`
	}
	if err := unmarshal(&pair); err != nil {
		return fmt.Errorf("must be a number or {good, bad}: %w", err)
	}
	t.Good, t.Bad = pair.Good, pair.Bad
	return nil
}

// defaultPaths mirrors greyhound/configuration.cpp's built-in search roots.
var defaultPaths = []string{
	"/greyhound", "~/greyhound",
	"/entwine", "~/entwine",
	"/opt/data",
}

// LoadConfig reads and validates the YAML configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}

	if c.HTTP.SecurePort != 0 {
		if c.HTTP.KeyFile == "" || c.HTTP.CertFile == "" {
			return fmt.Errorf("http.securePort requires http.keyFile and http.certFile")
		}
	}

	if c.HTTP.Headers == nil {
		c.HTTP.Headers = map[string]string{
			"Cache-Control":               "public, max-age=300",
			"Access-Control-Allow-Origin": "*",
			"Access-Control-Allow-Methods": "GET,OPTIONS",
		}
	}

	if len(c.Paths) == 0 {
		c.Paths = defaultPaths
	}

	if c.CacheBytes == 0 {
		c.CacheBytes = 52224288000
	}

	timeoutMinutes := c.ResourceTimeoutRaw
	if timeoutMinutes <= 0 {
		timeoutMinutes = 30
	}
	c.ResourceTimeout = time.Duration(timeoutMinutes * float64(time.Minute))
	if c.ResourceTimeout < 30*time.Second {
		c.ResourceTimeout = 30 * time.Second
	}

	if c.Auth != nil {
		if c.Auth.Path == "" {
			return fmt.Errorf("auth.path is required when auth is configured")
		}
		good := time.Duration(c.Auth.CacheMinutes.Good * float64(time.Minute))
		bad := time.Duration(c.Auth.CacheMinutes.Bad * float64(time.Minute))
		if good < 60*time.Second {
			good = 60 * time.Second
		}
		if bad < 60*time.Second {
			bad = 60 * time.Second
		}
		c.Auth.CacheGood = good
		c.Auth.CacheBad = bad
	}

	if c.BufferPool.Count <= 0 {
		c.BufferPool.Count = 1024
	}
	if c.BufferPool.DefaultCapacity == "" {
		c.BufferPool.DefaultCapacity = "512kb"
	}
	cap, err := ParseByteSize(c.BufferPool.DefaultCapacity)
	if err != nil {
		return fmt.Errorf("bufferPool.defaultCapacity: %w", err)
	}
	c.BufferPool.DefaultCapacityRaw = cap

	if c.BufferPool.ChunkThreshold == "" {
		c.BufferPool.ChunkThreshold = "64kb"
	}
	threshold, err := ParseByteSize(c.BufferPool.ChunkThreshold)
	if err != nil {
		return fmt.Errorf("bufferPool.chunkThreshold: %w", err)
	}
	c.BufferPool.ChunkThresholdRaw = threshold

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Prewarm != nil && c.Prewarm.Schedule == "" {
		return fmt.Errorf("prewarm.schedule is required when prewarm is configured")
	}

	return nil
}

// ParseByteSize parses a size string with an optional kb/mb/gb suffix
// (case-insensitive), or a bare integer number of bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "gb"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "gb")
	case strings.HasSuffix(s, "mb"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "mb")
	case strings.HasSuffix(s, "kb"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "kb")
	case strings.HasSuffix(s, "b"):
		s = strings.TrimSuffix(s, "b")
	}

	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n * multiplier, nil
}
