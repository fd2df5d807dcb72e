// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package query implements ReadQuery, the per-request producer that turns
// a reader.PointProducer into successive response chunks with an optional
// compression pass and the trailing point-count footer.
package query

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hobu/greyhound/internal/reader"
)

// ReadQuery drives one reader.PointProducer to completion, optionally
// piping its output through a Compressor, and appends the 4-byte
// little-endian point count once the producer is drained.
type ReadQuery struct {
	producer   reader.PointProducer
	compressor Compressor

	done      bool
	numPoints uint64
}

// New constructs a ReadQuery over producer. A nil compressor streams raw
// point bytes uncompressed.
func New(producer reader.PointProducer, compressor Compressor) *ReadQuery {
	return &ReadQuery{producer: producer, compressor: compressor}
}

// Read appends up to one chunk of output to buf: delegate to the
// producer, pipe through the compressor if one is attached, and append
// the trailer once the producer reports drained. Once Done returns true,
// Read must not be called again.
func (q *ReadQuery) Read(buf *bytes.Buffer) error {
	if q.done {
		return fmt.Errorf("query: read called after done")
	}

	var raw bytes.Buffer
	drained, err := q.producer.ReadSome(&raw)
	if err != nil {
		q.done = true
		return fmt.Errorf("query: reading points: %w", err)
	}

	if q.compressor != nil {
		if raw.Len() > 0 {
			if _, err := q.compressor.Write(raw.Bytes()); err != nil {
				q.done = true
				return fmt.Errorf("query: compressing points: %w", err)
			}
		}
		if drained {
			if err := q.compressor.Close(); err != nil {
				q.done = true
				return fmt.Errorf("query: closing compressor: %w", err)
			}
		}
		buf.Write(q.compressor.Drain())
	} else {
		buf.Write(raw.Bytes())
	}

	q.numPoints = q.producer.NumPoints()

	if drained {
		var trailer [4]byte
		binary.LittleEndian.PutUint32(trailer[:], uint32(q.numPoints))
		buf.Write(trailer[:])
		q.done = true
	}

	return nil
}

// Done reports whether the terminal chunk (including the trailer) has
// been appended.
func (q *ReadQuery) Done() bool { return q.done }

// NumPoints returns the number of points emitted so far, or the total
// once Done.
func (q *ReadQuery) NumPoints() uint64 { return q.numPoints }
