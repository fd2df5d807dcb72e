// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package server wires resource handlers onto an HTTP mux and runs the
// accept loop with graceful shutdown.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"

	"github.com/hobu/greyhound/internal/apierr"
	"github.com/hobu/greyhound/internal/observability"
	"github.com/hobu/greyhound/internal/resource"
	"github.com/hobu/greyhound/internal/streaming"
)

// gzipThreshold is the JSON-response size (info, hierarchy, files) above
// which the router gzips the body when the client advertises support; 8 KiB is small
// enough that a handful of depth levels over a modest bounds box will
// exercise it.
const gzipThreshold = 8 * 1024

// NewRouter builds the HTTP handler for the Greyhound resource API plus
// the /health endpoint. allowOrigins configures the CORS echo list (empty
// means "*").
func NewRouter(manager *resource.Manager, logger *slog.Logger, allowOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /resource/{name}/info", wrap(manager, logger, handleInfo))
	mux.HandleFunc("GET /resource/{name}/hierarchy", wrap(manager, logger, handleHierarchy))
	mux.HandleFunc("GET /resource/{name}/read", wrap(manager, logger, handleRead))
	mux.HandleFunc("GET /resource/{name}/files", wrap(manager, logger, handleFiles))
	mux.HandleFunc("GET /resource/{name}/files/{id}", wrap(manager, logger, handleFiles))

	for _, route := range []string{
		"/resource/{name}/info", "/resource/{name}/hierarchy",
		"/resource/{name}/read", "/resource/{name}/files", "/resource/{name}/files/{id}",
	} {
		mux.HandleFunc("OPTIONS "+route, corsPreflight(allowOrigins))
	}

	if manager.Rasterize() {
		mux.HandleFunc("GET /resource/{name}/raster", wrap(manager, logger, handleRaster))
		mux.HandleFunc("GET /resource/{name}/raster/meta", wrap(manager, logger, handleRasterMeta))
		mux.HandleFunc("GET /resource/{name}/raster/{level}", wrap(manager, logger, handleRasterLevel))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		observability.Handler(manager.Cache())(w, r)
	})

	return withFixedHeaders(manager, allowOrigins, mux)
}

// handlerFunc is a Resource handler bound to a specific route; wrap turns
// it into an http.HandlerFunc that resolves the named Resource, invokes
// the handler, and maps any returned error to an HTTP status. This is the
// single place an error becomes a status code and a response body.
type handlerFunc func(ctx context.Context, res *resource.Resource, w http.ResponseWriter, r *http.Request) error

func wrap(manager *resource.Manager, logger *slog.Logger, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		res, release, err := manager.Get(r.Context(), r, name)
		if err != nil {
			writeError(w, err)
			return
		}
		defer release()

		if err := h(r.Context(), res, w, r); err != nil {
			if err == apierr.ErrDisconnected {
				logger.Warn("client disconnected mid-stream", "resource", name)
				return
			}
			writeError(w, err)
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, msg := apierr.CodeOf(err)
	http.Error(w, msg, code)
}

func handleInfo(ctx context.Context, res *resource.Resource, w http.ResponseWriter, r *http.Request) error {
	info, err := res.Info(ctx)
	if err != nil {
		return err
	}
	return writeJSON(w, r, info)
}

func handleHierarchy(ctx context.Context, res *resource.Resource, w http.ResponseWriter, r *http.Request) error {
	result, err := res.Hierarchy(ctx, r.URL.Query())
	if err != nil {
		return err
	}
	return writeJSON(w, r, result)
}

func handleFiles(ctx context.Context, res *resource.Resource, w http.ResponseWriter, r *http.Request) error {
	result, err := res.Files(ctx, r.URL.Query(), r.PathValue("id"))
	if err != nil {
		return err
	}
	return writeJSON(w, r, result)
}

// handleRead drains a ReadQuery through a pooled buffer and a Chunker,
// streaming the point bytes as chunked transfer encoding.
func handleRead(ctx context.Context, res *resource.Resource, w http.ResponseWriter, r *http.Request) error {
	rq, err := res.Query(ctx, r.URL.Query())
	if err != nil {
		return err
	}

	manager := res.Manager()
	pool := manager.BufferPool()
	buf := pool.Capture(pool.Acquire())
	defer pool.Release(buf)

	dest := w
	if t := manager.Throttle(); t.BytesPerSecPerResource > 0 {
		dest = streaming.ThrottleResponseWriter(ctx, w, t.BytesPerSecPerResource)
	}

	chunker := streaming.NewChunker(dest, manager.Headers(), manager.ChunkThreshold())
	defer chunker.Close()

	scratch := bytes.NewBuffer(buf[:0])
	for {
		scratch.Reset()
		if err := rq.Read(scratch); err != nil {
			return apierr.Internal(err, "reading query for %q", res.Name())
		}
		done := rq.Done()
		if err := chunker.Write(scratch.Bytes(), done); err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func handleRaster(ctx context.Context, res *resource.Resource, w http.ResponseWriter, r *http.Request) error {
	return rasterize(ctx, res, w, 0, false)
}

func handleRasterLevel(ctx context.Context, res *resource.Resource, w http.ResponseWriter, r *http.Request) error {
	level, err := strconv.Atoi(r.PathValue("level"))
	if err != nil {
		return apierr.BadRequest("raster level must be an integer")
	}
	return rasterize(ctx, res, w, level, false)
}

func handleRasterMeta(ctx context.Context, res *resource.Resource, w http.ResponseWriter, r *http.Request) error {
	return rasterize(ctx, res, w, 0, true)
}

func rasterize(ctx context.Context, res *resource.Resource, w http.ResponseWriter, level int, meta bool) error {
	rr, ok, err := res.Raster(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.NotFound("resource does not support rasterization")
	}

	if meta {
		m, err := rr.RasterMeta(ctx)
		if err != nil {
			return apierr.Internal(err, "reading raster meta")
		}
		return writeJSON(w, nil, m)
	}

	data, err := rr.Rasterize(ctx, level)
	if err != nil {
		return apierr.Internal(err, "rasterizing level %d", level)
	}

	manager := res.Manager()
	chunker := streaming.NewChunker(w, manager.Headers(), manager.ChunkThreshold())
	defer chunker.Close()
	return chunker.Write(data, true)
}

// writeJSON serializes v, gzipping via pgzip when the body exceeds
// gzipThreshold and the client sent Accept-Encoding: gzip.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return apierr.Internal(err, "encoding response")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if r != nil && len(body) > gzipThreshold && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		var gzBuf bytes.Buffer
		gw := pgzip.NewWriter(&gzBuf)
		if _, err := gw.Write(body); err == nil && gw.Close() == nil {
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Set("Content-Length", strconv.Itoa(gzBuf.Len()))
			w.WriteHeader(http.StatusOK)
			_, err := w.Write(gzBuf.Bytes())
			return err
		}
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}

func corsPreflight(allowOrigins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applyCORS(w, r, allowOrigins)
		w.WriteHeader(http.StatusNoContent)
	}
}

func applyCORS(w http.ResponseWriter, r *http.Request, allowOrigins []string) {
	origin := "*"
	if len(allowOrigins) > 0 {
		reqOrigin := r.Header.Get("Origin")
		for _, o := range allowOrigins {
			if o == reqOrigin {
				origin = reqOrigin
				break
			}
		}
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// withFixedHeaders injects the configured header map plus the always-on
// headers into every response before delegating to next.
func withFixedHeaders(manager *resource.Manager, allowOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range manager.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-powered-by", "Hobu, Inc.")
		applyCORS(w, r, allowOrigins)
		next.ServeHTTP(w, r)
	})
}
