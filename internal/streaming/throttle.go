// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package streaming

import (
	"context"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// maxBurstSize caps the token bucket burst regardless of the configured
// rate, so a generous bytesPerSec limit doesn't let a single Write reserve
// an enormous burst before blocking.
const maxBurstSize = 256 * 1024

// ThrottledWriter is an io.Writer rate-limited to a configured byte/sec
// ceiling, backing the optional /read response throttle. Each wrapped
// writer has its own limiter; no limit is shared across responses.
type ThrottledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledWriter wraps w with a rate limiter capped at bytesPerSec. A
// non-positive bytesPerSec disables throttling and returns w unchanged.
func NewThrottledWriter(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}

	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}

	return &ThrottledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// Write implements io.Writer, splitting p into burst-sized pieces so large
// writes consume tokens gradually instead of blocking for the whole write.
func (tw *ThrottledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}

		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return total, err
		}

		n, err := tw.w.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}

// throttledResponseWriter rate-limits an http.ResponseWriter's Write calls
// while passing Header/WriteHeader/Flush through unchanged, so a Chunker
// can be throttled without knowing about rate limiting itself.
type throttledResponseWriter struct {
	http.ResponseWriter
	tw io.Writer
}

// ThrottleResponseWriter wraps w so that body writes are rate-limited at
// bytesPerSec, while headers and flushing behave identically to w. A
// non-positive bytesPerSec returns w unchanged.
func ThrottleResponseWriter(ctx context.Context, w http.ResponseWriter, bytesPerSec int64) http.ResponseWriter {
	if bytesPerSec <= 0 {
		return w
	}
	return &throttledResponseWriter{ResponseWriter: w, tw: NewThrottledWriter(ctx, w, bytesPerSec)}
}

func (t *throttledResponseWriter) Write(p []byte) (int, error) { return t.tw.Write(p) }

func (t *throttledResponseWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
