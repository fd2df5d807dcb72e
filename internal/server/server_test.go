// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/hobu/greyhound/internal/config"
	"github.com/hobu/greyhound/internal/resource"
)

func TestRunWithListener_ServesAndShutsDownOnCancel(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		Paths:           []string{root},
		CacheBytes:      1 << 30,
		ResourceTimeout: time.Hour,
		BufferPool: config.BufferPoolConfig{
			Count:              4,
			DefaultCapacityRaw: 4096,
			ChunkThresholdRaw:  1024,
		},
		HTTP: config.HTTPConfig{Headers: map[string]string{}},
	}
	m, err := resource.NewManager(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunWithListener(ctx, ln, m, discardLogger(), nil)
	}()

	// Give the listener a moment to start accepting.
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunWithListener returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunWithListener did not shut down within deadline")
	}
}
