// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package query

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// fakeProducer emits a fixed slice of points, chunkSize bytes at a time.
type fakeProducer struct {
	data      []byte
	chunkSize int
	offset    int
	emitted   uint64
	stride    int
}

func (f *fakeProducer) ReadSome(buf *bytes.Buffer) (bool, error) {
	end := f.offset + f.chunkSize
	if end > len(f.data) {
		end = len(f.data)
	}
	buf.Write(f.data[f.offset:end])
	f.emitted += uint64((end - f.offset) / f.stride)
	f.offset = end
	return f.offset >= len(f.data), nil
}

func (f *fakeProducer) NumPoints() uint64 { return f.emitted }

func drainQuery(t *testing.T, q *ReadQuery) []byte {
	t.Helper()
	var out bytes.Buffer
	for !q.Done() {
		var chunk bytes.Buffer
		if err := q.Read(&chunk); err != nil {
			t.Fatalf("Read: %v", err)
		}
		out.Write(chunk.Bytes())
	}
	return out.Bytes()
}

func TestReadQuery_UncompressedTrailer(t *testing.T) {
	points := bytes.Repeat([]byte{0xAB}, 8*5) // 5 points of stride 8
	p := &fakeProducer{data: points, chunkSize: 8 * 2, stride: 8}
	q := New(p, nil)

	body := drainQuery(t, q)

	if len(body) != len(points)+4 {
		t.Fatalf("expected body length %d, got %d", len(points)+4, len(body))
	}
	trailer := binary.LittleEndian.Uint32(body[len(body)-4:])
	if trailer != 5 {
		t.Errorf("expected trailer 5, got %d", trailer)
	}
	if q.NumPoints() != 5 {
		t.Errorf("expected NumPoints 5, got %d", q.NumPoints())
	}
}

func TestReadQuery_FlateRoundTrip(t *testing.T) {
	points := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 10)
	p := &fakeProducer{data: points, chunkSize: 8, stride: 4}

	compressor, err := NewCompressor("true")
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	q := New(p, compressor)
	body := drainQuery(t, q)

	trailer := binary.LittleEndian.Uint32(body[len(body)-4:])
	if trailer != 10 {
		t.Errorf("expected trailer 10, got %d", trailer)
	}

	fr := flate.NewReader(bytes.NewReader(body[:len(body)-4]))
	defer fr.Close()
	var decoded bytes.Buffer
	if _, err := decoded.ReadFrom(fr); err != nil {
		t.Fatalf("decompressing: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), points) {
		t.Error("decompressed bytes do not match original point stream")
	}
}

func TestReadQuery_ZstdRoundTrip(t *testing.T) {
	points := bytes.Repeat([]byte{0xAA, 0xBB, 0xCC, 0xDD}, 20)
	p := &fakeProducer{data: points, chunkSize: 16, stride: 4}

	compressor, err := NewCompressor("zstd")
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	q := New(p, compressor)
	body := drainQuery(t, q)

	trailer := binary.LittleEndian.Uint32(body[len(body)-4:])
	if trailer != 20 {
		t.Errorf("expected trailer 20, got %d", trailer)
	}

	dec, err := zstd.NewReader(bytes.NewReader(body[:len(body)-4]))
	if err != nil {
		t.Fatalf("creating zstd reader: %v", err)
	}
	defer dec.Close()
	decoded, err := dec.DecodeAll(body[:len(body)-4], nil)
	if err != nil {
		t.Fatalf("decompressing: %v", err)
	}
	if !bytes.Equal(decoded, points) {
		t.Error("decompressed bytes do not match original point stream")
	}
}

func TestReadQuery_ReadAfterDoneFails(t *testing.T) {
	p := &fakeProducer{data: []byte{1, 2, 3, 4}, chunkSize: 8, stride: 4}
	q := New(p, nil)
	drainQuery(t, q)

	var buf bytes.Buffer
	if err := q.Read(&buf); err == nil {
		t.Error("expected error reading after done")
	}
}

func TestNewCompressor_UnrecognizedMode(t *testing.T) {
	if _, err := NewCompressor("lzma"); err == nil {
		t.Error("expected error for unrecognized compression mode")
	}
}
