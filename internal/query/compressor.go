// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package query

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// Compressor is the seam ReadQuery drives its optional point-stream
// compression through: raw point bytes go in via Write, compressed bytes
// accumulate internally, and Drain hands back whatever the codec has
// flushed so far. Close finalizes the stream — any bytes it flushes on
// Close are still available via a final Drain.
type Compressor interface {
	Write(p []byte) (int, error)
	Close() error
	Drain() []byte
}

// NewCompressor builds a Compressor for the requested mode. An empty mode
// returns (nil, nil) — the caller's signal to skip compression entirely.
// "true" selects a flate-backed general-purpose compression mode; "zstd"
// selects the higher-ratio zstd mode.
func NewCompressor(mode string) (Compressor, error) {
	switch mode {
	case "", "false":
		return nil, nil
	case "true":
		return newFlateCompressor(), nil
	case "zstd":
		return newZstdCompressor()
	default:
		return nil, fmt.Errorf("unrecognized compress mode %q", mode)
	}
}

// flateCompressor wraps klauspost/compress/flate behind the
// feed-bytes-in/flush-and-close-on-drain Compressor shape.
type flateCompressor struct {
	buf *bytes.Buffer
	w   *flate.Writer
}

func newFlateCompressor() *flateCompressor {
	buf := &bytes.Buffer{}
	w, _ := flate.NewWriter(buf, flate.DefaultCompression)
	return &flateCompressor{buf: buf, w: w}
}

func (c *flateCompressor) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.w.Flush()
}

func (c *flateCompressor) Close() error {
	return c.w.Close()
}

func (c *flateCompressor) Drain() []byte {
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	c.buf.Reset()
	return out
}

// zstdCompressor backs the compress=zstd mode, wrapping
// klauspost/compress/zstd behind the same Compressor seam.
type zstdCompressor struct {
	buf *bytes.Buffer
	w   *zstd.Encoder
}

func newZstdCompressor() (*zstdCompressor, error) {
	buf := &bytes.Buffer{}
	w, err := zstd.NewWriter(buf)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &zstdCompressor{buf: buf, w: w}, nil
}

func (c *zstdCompressor) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.w.Flush()
}

func (c *zstdCompressor) Close() error {
	return c.w.Close()
}

func (c *zstdCompressor) Drain() []byte {
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	c.buf.Reset()
	return out
}
