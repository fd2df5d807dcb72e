// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package reader defines the boundary between the Greyhound core (Manager,
// Resource, Router) and the opaque spatial-index backend. The core never
// interprets schema bytes, bounds semantics, or hierarchy structure — it
// only shapes requests into the types below and forwards Reader's answers
// to the wire.
package reader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Bounds is an opaque axis-aligned box: [xmin, ymin, zmin, xmax, ymax, zmax].
type Bounds [6]float64

// Delta is the scale/offset pair shared by hierarchy, read, and files
// queries. Scale may have been supplied as a scalar in the request JSON;
// ParseDelta normalizes it to a 3-vector either way.
type Delta struct {
	Scale  [3]float64
	Offset [3]float64
}

// ParseDelta extracts a {scale, offset} pair from a decoded query object.
// scale may be a JSON number (applied uniformly to all three axes) or a
// 3-element array; offset must be a 3-element array when present. When
// neither key is present it returns a nil Delta; an absent scale defaults
// to ones and an absent offset to zeros.
func ParseDelta(query map[string]any) (*Delta, error) {
	scaleRaw, hasScale := query["scale"]
	offsetRaw, hasOffset := query["offset"]
	if !hasScale && !hasOffset {
		return nil, nil
	}

	var d Delta
	if hasScale {
		switch v := scaleRaw.(type) {
		case float64:
			d.Scale = [3]float64{v, v, v}
		case []any:
			vec, err := toVec3(v)
			if err != nil {
				return nil, fmt.Errorf("scale: %w", err)
			}
			d.Scale = vec
		default:
			return nil, fmt.Errorf("scale must be a number or a 3-element array")
		}
	} else {
		d.Scale = [3]float64{1, 1, 1}
	}

	if hasOffset {
		vec, ok := offsetRaw.([]any)
		if !ok {
			return nil, fmt.Errorf("offset must be a 3-element array")
		}
		parsed, err := toVec3(vec)
		if err != nil {
			return nil, fmt.Errorf("offset: %w", err)
		}
		d.Offset = parsed
	}

	return &d, nil
}

func toVec3(v []any) ([3]float64, error) {
	var out [3]float64
	if len(v) != 3 {
		return out, fmt.Errorf("expected 3 elements, got %d", len(v))
	}
	for i, e := range v {
		n, ok := e.(float64)
		if !ok {
			return out, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = n
	}
	return out, nil
}

// Field describes one column of an encoded point record.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int    `json:"size"`
}

// Schema is an ordered list of Fields; Stride is the byte width of one
// encoded point record under this schema.
type Schema []Field

// Stride returns the byte size of one point record.
func (s Schema) Stride() int {
	total := 0
	for _, f := range s {
		total += f.Size
	}
	return total
}

// Metadata is the body of a successful /info response.
type Metadata struct {
	Type             string     `json:"type"`
	NumPoints        uint64     `json:"numPoints"`
	Schema           Schema     `json:"schema"`
	Bounds           Bounds     `json:"bounds"`
	BoundsConforming Bounds     `json:"boundsConforming"`
	SRS              string     `json:"srs,omitempty"`
	BaseDepth        int        `json:"baseDepth"`
	Reprojection     string     `json:"reprojection,omitempty"`
	Density          float64    `json:"density,omitempty"`
	Scale            *[3]float64 `json:"scale,omitempty"`
	Offset           *[3]float64 `json:"offset,omitempty"`
}

// HierarchyQuery is the decoded shape of a GET .../hierarchy request.
type HierarchyQuery struct {
	DepthBegin int
	DepthEnd   int
	Bounds     Bounds
	Vertical   bool
	Delta      *Delta
}

// FilesQuery is the decoded shape of a GET .../files request. Exactly one
// of Search or Bounds may be set; both set is rejected by the handler
// before a Reader ever sees it.
type FilesQuery struct {
	Search string
	Bounds *Bounds
	Delta  *Delta
}

// FileInfo describes one source file contributing to the index.
type FileInfo struct {
	Path   string `json:"path"`
	Bounds Bounds `json:"bounds"`
	ID     int    `json:"id"`
}

// ReadQueryParams is the decoded shape of a GET .../read request, minus
// the compress flag, which is handled purely at the query layer.
type ReadQueryParams struct {
	Bounds     *Bounds
	HasDepth   bool
	DepthBegin int
	DepthEnd   int
	Schema     Schema
	Filter     json.RawMessage
	Delta      *Delta
}

// PointProducer streams the raw, schema-encoded point bytes of one read
// query. Each call appends at most one chunk's worth of point records to
// buf and reports whether the underlying query has been fully drained.
type PointProducer interface {
	// ReadSome appends up to one chunk of point bytes to buf and reports
	// whether the query is now fully drained.
	ReadSome(buf *bytes.Buffer) (done bool, err error)
	// NumPoints returns the number of points written to buf so far.
	NumPoints() uint64
}

// Reader is the opaque per-resource index handle: the four query
// operations a backend must answer, plus Close and ByteSize for the
// Manager's lifecycle and cache-budget bookkeeping.
type Reader interface {
	Info(ctx context.Context) (*Metadata, error)
	Hierarchy(ctx context.Context, q HierarchyQuery) (map[string]any, error)
	Files(ctx context.Context, q FilesQuery) (any, error)
	Query(ctx context.Context, q ReadQueryParams) (PointProducer, error)

	// Close releases any resources (open file handles, mmaps) held by
	// this Reader. Called by TimedReader.Reset once no borrow remains.
	Close() error

	// ByteSize estimates the memory footprint counted against the
	// process-wide cache budget.
	ByteSize() int64
}

// RasterReader is an optional extension interface implemented by Readers
// that support legacy raster query modes. It is consulted only when
// config.Rasterize.Enabled is true.
type RasterReader interface {
	Rasterize(ctx context.Context, level int) ([]byte, error)
	RasterMeta(ctx context.Context) (map[string]any, error)
}
