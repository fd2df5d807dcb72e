// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package resource

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/hobu/greyhound/internal/apierr"
	"github.com/hobu/greyhound/internal/query"
	"github.com/hobu/greyhound/internal/reader"
)

// Resource is a per-request handle borrowed from the Manager, wrapping an
// ordered list of TimedReaders — almost always just one. It lives only for
// the duration of the request that obtained it via Manager.Get.
type Resource struct {
	name    string
	readers []*TimedReader
	manager *Manager
}

// Name returns the resource's name.
func (r *Resource) Name() string { return r.name }

// Manager returns the Manager this Resource was borrowed from, so HTTP
// handlers can reach shared collaborators (buffer pool, fixed headers,
// throttle settings) without the Manager needing to be threaded through
// every handler signature separately.
func (r *Resource) Manager() *Manager { return r.manager }

func (r *Resource) reader(ctx context.Context) (reader.Reader, error) {
	rd, err := r.readers[0].Get(ctx)
	if err != nil {
		return nil, apierr.Internal(err, "loading reader for %q", r.name)
	}
	return rd, nil
}

// Raster returns the Reader behind this Resource as a reader.RasterReader
// when it implements the optional extension, and ok=false otherwise.
func (r *Resource) Raster(ctx context.Context) (rr reader.RasterReader, ok bool, err error) {
	rd, err := r.reader(ctx)
	if err != nil {
		return nil, false, err
	}
	rr, ok = rd.(reader.RasterReader)
	return rr, ok, nil
}

// Info implements the GET .../info handler.
func (r *Resource) Info(ctx context.Context) (*reader.Metadata, error) {
	rd, err := r.reader(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := rd.Info(ctx)
	if err != nil {
		return nil, apierr.Internal(err, "reading info for %q", r.name)
	}
	return meta, nil
}

// Hierarchy implements the GET .../hierarchy handler. query carries the
// decoded URL query parameters.
func (r *Resource) Hierarchy(ctx context.Context, query url.Values) (map[string]any, error) {
	hq, err := parseHierarchyQuery(query)
	if err != nil {
		return nil, err
	}

	rd, err := r.reader(ctx)
	if err != nil {
		return nil, err
	}

	result, err := rd.Hierarchy(ctx, hq)
	if err != nil {
		return nil, apierr.Internal(err, "computing hierarchy for %q", r.name)
	}
	return result, nil
}

// Files implements the GET .../files and .../files/{id} handlers.
// pathSegment is the optional trailing path component of the request
// (".../files/42"); it is empty for the plain ".../files" route.
func (r *Resource) Files(ctx context.Context, query url.Values, pathSegment string) (any, error) {
	fq, err := parseFilesQuery(query, pathSegment)
	if err != nil {
		return nil, err
	}

	rd, err := r.reader(ctx)
	if err != nil {
		return nil, err
	}

	result, err := rd.Files(ctx, fq)
	if err != nil {
		return nil, apierr.Internal(err, "listing files for %q", r.name)
	}
	return result, nil
}

// Query implements the data-producing half of GET .../read: it parses the
// request, opens a point query against the Reader, and wraps it behind a
// query.ReadQuery with the requested compression mode attached. The
// caller (the router's /read handler) owns draining it through a Chunker.
func (r *Resource) Query(ctx context.Context, values url.Values) (*query.ReadQuery, error) {
	rq, err := parseReadQuery(values)
	if err != nil {
		return nil, err
	}

	rd, err := r.reader(ctx)
	if err != nil {
		return nil, err
	}

	producer, err := rd.Query(ctx, rq)
	if err != nil {
		return nil, apierr.Internal(err, "opening read query for %q", r.name)
	}

	compressor, err := query.NewCompressor(values.Get("compress"))
	if err != nil {
		return nil, apierr.BadRequest("%v", err)
	}

	return query.New(producer, compressor), nil
}

func parseBounds(raw string) (*reader.Bounds, error) {
	if raw == "" {
		return nil, nil
	}
	var vals [6]float64
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil, apierr.BadRequest("invalid bounds: %v", err)
	}
	b := reader.Bounds(vals)
	return &b, nil
}

func parseDeltaParam(values url.Values) (*reader.Delta, error) {
	scale := values.Get("scale")
	offset := values.Get("offset")
	if scale == "" && offset == "" {
		return nil, nil
	}

	raw := make(map[string]any)
	if scale != "" {
		var v any
		if err := json.Unmarshal([]byte(scale), &v); err != nil {
			return nil, apierr.BadRequest("invalid scale: %v", err)
		}
		raw["scale"] = v
	}
	if offset != "" {
		var v any
		if err := json.Unmarshal([]byte(offset), &v); err != nil {
			return nil, apierr.BadRequest("invalid offset: %v", err)
		}
		raw["offset"] = v
	}

	d, err := reader.ParseDelta(raw)
	if err != nil {
		return nil, apierr.BadRequest("%v", err)
	}
	return d, nil
}

func parseIntField(values url.Values, name string) (int, bool, error) {
	raw := values.Get(name)
	if raw == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, apierr.BadRequest("%s must be a number", name)
	}
	return int(f), true, nil
}

func parseHierarchyQuery(values url.Values) (reader.HierarchyQuery, error) {
	var hq reader.HierarchyQuery

	begin, hasBegin, err := parseIntField(values, "depthBegin")
	if err != nil {
		return hq, err
	}
	end, hasEnd, err := parseIntField(values, "depthEnd")
	if err != nil {
		return hq, err
	}
	if !hasBegin || !hasEnd {
		return hq, apierr.BadRequest("hierarchy requires depthBegin and depthEnd")
	}
	hq.DepthBegin, hq.DepthEnd = begin, end

	bounds, err := parseBounds(values.Get("bounds"))
	if err != nil {
		return hq, err
	}
	if bounds == nil {
		return hq, apierr.BadRequest("hierarchy requires bounds")
	}
	hq.Bounds = *bounds

	hq.Vertical = values.Get("vertical") == "true"

	delta, err := parseDeltaParam(values)
	if err != nil {
		return hq, err
	}
	hq.Delta = delta

	return hq, nil
}

func parseFilesQuery(values url.Values, pathSegment string) (reader.FilesQuery, error) {
	var fq reader.FilesQuery

	search := values.Get("search")
	bounds, err := parseBounds(values.Get("bounds"))
	if err != nil {
		return fq, err
	}

	if pathSegment != "" {
		if search != "" {
			return fq, apierr.BadRequest("cannot specify both a file id path segment and search")
		}
		search = pathSegment
	}

	if search != "" && bounds != nil {
		return fq, apierr.BadRequest("Invalid query - cannot specify bounds and search")
	}

	fq.Search = search
	fq.Bounds = bounds

	delta, err := parseDeltaParam(values)
	if err != nil {
		return fq, err
	}
	fq.Delta = delta

	return fq, nil
}

func parseSchema(raw string) (reader.Schema, error) {
	if raw == "" {
		return nil, nil
	}
	var schema reader.Schema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil, apierr.BadRequest("invalid schema: %v", err)
	}
	return schema, nil
}

func parseReadQuery(values url.Values) (reader.ReadQueryParams, error) {
	var rq reader.ReadQueryParams

	bounds, err := parseBounds(values.Get("bounds"))
	if err != nil {
		return rq, err
	}
	search := values.Get("search")
	if search != "" && bounds != nil {
		return rq, apierr.BadRequest("Invalid query - cannot specify bounds and search")
	}
	rq.Bounds = bounds

	depth, hasDepth, err := parseIntField(values, "depth")
	if err != nil {
		return rq, err
	}
	begin, hasBegin, err := parseIntField(values, "depthBegin")
	if err != nil {
		return rq, err
	}
	end, hasEnd, err := parseIntField(values, "depthEnd")
	if err != nil {
		return rq, err
	}
	if hasDepth && (hasBegin || hasEnd) {
		return rq, apierr.BadRequest("Invalid query - cannot specify depth and depthBegin/depthEnd")
	}
	switch {
	case hasDepth:
		rq.HasDepth = true
		rq.DepthBegin, rq.DepthEnd = depth, depth+1
	case hasBegin && hasEnd:
		rq.HasDepth = true
		rq.DepthBegin, rq.DepthEnd = begin, end
	case hasBegin || hasEnd:
		return rq, apierr.BadRequest("Invalid query - depthBegin and depthEnd must be specified together")
	}

	schema, err := parseSchema(values.Get("schema"))
	if err != nil {
		return rq, err
	}
	rq.Schema = schema

	if filter := values.Get("filter"); filter != "" {
		if !json.Valid([]byte(filter)) {
			return rq, apierr.BadRequest("invalid filter")
		}
		rq.Filter = json.RawMessage(filter)
	}

	delta, err := parseDeltaParam(values)
	if err != nil {
		return rq, err
	}
	rq.Delta = delta

	mode := values.Get("compress")
	if mode != "" && mode != "true" && mode != "false" && mode != "zstd" {
		return rq, apierr.BadRequest("unrecognized compress mode %q", mode)
	}

	return rq, nil
}
