// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package memreader is a filesystem-backed Reader implementation used for
// local development and tests. It grounds itself on entwine's own
// directory layout (an `entwine.json`-style metadata file alongside a flat
// data file) without attempting to reproduce entwine's octree format: a
// resource directory holds a small JSON metadata file, a JSON manifest of
// source files, and a flat binary file of pre-encoded point records.
package memreader

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/hobu/greyhound/internal/reader"
)

const (
	metaFile     = "info.json"
	manifestFile = "manifest.json"
	pointsFile   = "points.bin"
)

// diskMetadata mirrors reader.Metadata but keeps Scale/Offset as plain
// (non-pointer) fields for a friendlier on-disk JSON shape.
type diskMetadata struct {
	Type             string        `json:"type"`
	NumPoints        uint64        `json:"numPoints"`
	Schema           reader.Schema `json:"schema"`
	Bounds           reader.Bounds `json:"bounds"`
	BoundsConforming reader.Bounds `json:"boundsConforming"`
	SRS              string        `json:"srs"`
	BaseDepth        int           `json:"baseDepth"`
	Reprojection     string        `json:"reprojection"`
	Density          float64       `json:"density"`
}

// Reader is a concrete, filesystem-backed reader.Reader.
type Reader struct {
	dir      string
	meta     diskMetadata
	manifest []reader.FileInfo
	points   []byte

	mu     sync.RWMutex
	closed bool
}

// Open attempts to load an index rooted at dir. It returns an error
// wrapping os.ErrNotExist when dir does not contain a metadata file, so
// TimedReader's search-path loop can move on to the next configured root.
func Open(dir string) (*Reader, error) {
	metaPath := filepath.Join(dir, metaFile)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta diskMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", metaPath, err)
	}

	var manifest []reader.FileInfo
	if raw, err := os.ReadFile(filepath.Join(dir, manifestFile)); err == nil {
		if err := json.Unmarshal(raw, &manifest); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", manifestFile, err)
		}
	}

	points, err := os.ReadFile(filepath.Join(dir, pointsFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", pointsFile, err)
	}

	return &Reader{dir: dir, meta: meta, manifest: manifest, points: points}, nil
}

// Info implements reader.Reader.
func (r *Reader) Info(ctx context.Context) (*reader.Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, fmt.Errorf("memreader: reader closed")
	}

	return &reader.Metadata{
		Type:             r.meta.Type,
		NumPoints:        r.meta.NumPoints,
		Schema:           r.meta.Schema,
		Bounds:           r.meta.Bounds,
		BoundsConforming: r.meta.BoundsConforming,
		SRS:              r.meta.SRS,
		BaseDepth:        r.meta.BaseDepth,
		Reprojection:     r.meta.Reprojection,
		Density:          r.meta.Density,
	}, nil
}

// Hierarchy implements reader.Reader with a synthetic single-node tree:
// every point in range is attributed to the root node. This is enough to
// exercise the hierarchy wire shape without reimplementing an octree walk.
func (r *Reader) Hierarchy(ctx context.Context, q reader.HierarchyQuery) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, fmt.Errorf("memreader: reader closed")
	}

	count := r.countInBounds(q.Bounds)
	return map[string]any{
		"n": count,
	}, nil
}

// Files implements reader.Reader.
func (r *Reader) Files(ctx context.Context, q reader.FilesQuery) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, fmt.Errorf("memreader: reader closed")
	}

	if q.Search != "" {
		for i, f := range r.manifest {
			if f.Path == q.Search || fmt.Sprint(f.ID) == q.Search {
				return r.manifest[i], nil
			}
		}
		return nil, fmt.Errorf("no file matching %q", q.Search)
	}

	if q.Bounds != nil {
		var matches []reader.FileInfo
		for _, f := range r.manifest {
			if overlaps(f.Bounds, *q.Bounds) {
				matches = append(matches, f)
			}
		}
		return matches, nil
	}

	paths := make([]string, len(r.manifest))
	for i, f := range r.manifest {
		paths[i] = f.Path
	}
	return paths, nil
}

// Query implements reader.Reader, returning a producer over the subset of
// points falling inside q.Bounds (or all points, when unset).
func (r *Reader) Query(ctx context.Context, q reader.ReadQueryParams) (reader.PointProducer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, fmt.Errorf("memreader: reader closed")
	}

	stride := r.meta.Schema.Stride()
	if stride == 0 {
		return nil, fmt.Errorf("memreader: schema has zero stride")
	}

	selected := r.points
	if q.Bounds != nil {
		selected = r.filterByBounds(*q.Bounds, stride)
	}

	return &producer{data: selected, stride: stride}, nil
}

// Close implements reader.Reader.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.points = nil
	return nil
}

// ByteSize implements reader.Reader.
func (r *Reader) ByteSize() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.points))
}

func (r *Reader) countInBounds(b reader.Bounds) uint64 {
	stride := r.meta.Schema.Stride()
	if stride == 0 {
		return 0
	}
	return uint64(len(r.filterByBounds(b, stride)) / stride)
}

// filterByBounds assumes the first three schema fields are X, Y, Z encoded
// as float64, which is true of every fixture this reader is built for; a
// production-grade index keeps this logic behind the real Reader backend.
func (r *Reader) filterByBounds(b reader.Bounds, stride int) []byte {
	if stride < 24 {
		return r.points
	}

	var out bytes.Buffer
	for off := 0; off+stride <= len(r.points); off += stride {
		rec := r.points[off : off+stride]
		x := math.Float64frombits(binary.LittleEndian.Uint64(rec[0:8]))
		y := math.Float64frombits(binary.LittleEndian.Uint64(rec[8:16]))
		z := math.Float64frombits(binary.LittleEndian.Uint64(rec[16:24]))
		if x >= b[0] && x <= b[3] && y >= b[1] && y <= b[4] && z >= b[2] && z <= b[5] {
			out.Write(rec)
		}
	}
	return out.Bytes()
}

func overlaps(a, b reader.Bounds) bool {
	return a[0] <= b[3] && a[3] >= b[0] &&
		a[1] <= b[4] && a[4] >= b[1] &&
		a[2] <= b[5] && a[5] >= b[2]
}

// producer streams the already-selected byte slice in chunks of at most
// chunkPoints records.
type producer struct {
	data    []byte
	stride  int
	offset  int
	emitted uint64
}

// chunkPoints bounds how many point records producer.ReadSome appends per
// call, independent of the caller's buffer capacity.
const chunkPoints = 256

func (p *producer) ReadSome(buf *bytes.Buffer) (bool, error) {
	if p.offset >= len(p.data) {
		return true, nil
	}

	end := p.offset + chunkPoints*p.stride
	if end > len(p.data) {
		end = len(p.data)
	}
	// Snap to a stride boundary.
	end -= (end - p.offset) % p.stride

	buf.Write(p.data[p.offset:end])
	p.emitted += uint64((end - p.offset) / p.stride)
	p.offset = end

	return p.offset >= len(p.data), nil
}

func (p *producer) NumPoints() uint64 { return p.emitted }
