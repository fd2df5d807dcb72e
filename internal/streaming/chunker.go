// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package streaming

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hobu/greyhound/internal/apierr"
)

// Chunker adapts a producer of successive byte chunks to an HTTP response:
// headers are emitted lazily on the first write, `Content-Length` is used
// instead of chunked transfer when the entire body fits in the first
// buffer, and writes beyond a configured threshold are flushed
// immediately. It writes through net/http's ResponseWriter and lets the
// standard library perform chunked-transfer framing — calling Flush after
// each accumulated write is what triggers net/http to emit a chunk
// boundary.
type Chunker struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	headers   map[string]string
	threshold int

	data        bytes.Buffer
	headersSent bool
	done        bool
	cancelled   bool
}

// NewChunker constructs a Chunker writing to w. threshold is the
// accumulator size (bytes) above which a write forces an intermediate
// flush.
func NewChunker(w http.ResponseWriter, headers map[string]string, threshold int) *Chunker {
	flusher, _ := w.(http.Flusher)
	if threshold <= 0 {
		threshold = 64 * 1024
	}
	return &Chunker{w: w, headers: headers, threshold: threshold, flusher: flusher}
}

// Write appends p to the in-progress chunk. When last is true, this is the
// terminal call: any residual bytes are emitted and the chunked stream (or
// single Content-Length body) is closed. Any failed write to the response
// is reported as apierr.ErrDisconnected and leaves the Chunker terminal;
// it must not be called again.
func (c *Chunker) Write(p []byte, last bool) error {
	if c.done {
		return fmt.Errorf("streaming: write called after done")
	}

	c.data.Write(p)

	if !c.headersSent {
		for k, v := range c.headers {
			c.w.Header().Set(k, v)
		}
		c.w.Header().Set("Content-Type", "binary/octet-stream")
		if last {
			c.w.Header().Set("Content-Length", strconv.Itoa(c.data.Len()))
		}
		c.w.WriteHeader(http.StatusOK)
		c.headersSent = true
	}

	if last {
		return c.finish()
	}

	if c.data.Len() >= c.threshold {
		return c.flushChunk()
	}
	return nil
}

func (c *Chunker) flushChunk() error {
	if c.data.Len() == 0 {
		return nil
	}
	_, err := c.w.Write(c.data.Bytes())
	c.data.Reset()
	if err != nil {
		c.cancelled = true
		c.done = true
		return apierr.ErrDisconnected
	}
	if c.flusher != nil {
		c.flusher.Flush()
	}
	return nil
}

func (c *Chunker) finish() error {
	if c.done {
		return nil
	}
	err := c.flushChunk()
	c.done = true
	return err
}

// Done reports whether the terminal chunk (or the single Content-Length
// body) has been emitted.
func (c *Chunker) Done() bool { return c.done }

// Cancelled reports whether the underlying write observed the client
// having disconnected.
func (c *Chunker) Cancelled() bool { return c.cancelled }

// Close performs a best-effort terminal write for the exception path: if
// headers were sent but done was never called
// (a handler returned early on error after starting to stream), this
// attempts to close the stream cleanly. The caller is expected to log any
// returned error rather than propagate it, since by this point no error
// response can reach the client in-band.
func (c *Chunker) Close() error {
	if c.done || !c.headersSent {
		return nil
	}
	return c.finish()
}
