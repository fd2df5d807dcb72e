// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package reader

import "testing"

func TestParseDelta_AbsentKeysReturnNil(t *testing.T) {
	d, err := ParseDelta(map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != nil {
		t.Fatal("expected nil Delta when neither key is present")
	}
}

func TestParseDelta_ScalarScaleBroadcasts(t *testing.T) {
	d, err := ParseDelta(map[string]any{"scale": 2.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [3]float64{2, 2, 2}
	if d.Scale != want {
		t.Errorf("expected scale %v, got %v", want, d.Scale)
	}
}

func TestParseDelta_VectorScaleAndOffset(t *testing.T) {
	d, err := ParseDelta(map[string]any{
		"scale":  []any{1.0, 2.0, 3.0},
		"offset": []any{10.0, 20.0, 30.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Scale != [3]float64{1, 2, 3} {
		t.Errorf("unexpected scale: %v", d.Scale)
	}
	if d.Offset != [3]float64{10, 20, 30} {
		t.Errorf("unexpected offset: %v", d.Offset)
	}
}

func TestParseDelta_OffsetOnlyDefaultsScaleToOne(t *testing.T) {
	d, err := ParseDelta(map[string]any{"offset": []any{1.0, 1.0, 1.0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Scale != [3]float64{1, 1, 1} {
		t.Errorf("expected default scale of ones, got %v", d.Scale)
	}
}

func TestParseDelta_WrongLengthVectorErrors(t *testing.T) {
	_, err := ParseDelta(map[string]any{"scale": []any{1.0, 2.0}})
	if err == nil {
		t.Fatal("expected error for a 2-element scale vector")
	}
}

func TestParseDelta_NonNumericOffsetErrors(t *testing.T) {
	_, err := ParseDelta(map[string]any{"offset": []any{"a", "b", "c"}})
	if err == nil {
		t.Fatal("expected error for non-numeric offset elements")
	}
}

func TestSchema_Stride(t *testing.T) {
	s := Schema{
		{Name: "X", Type: "floating", Size: 8},
		{Name: "Y", Type: "floating", Size: 8},
		{Name: "Z", Type: "floating", Size: 8},
		{Name: "Intensity", Type: "unsigned", Size: 2},
	}
	if got := s.Stride(); got != 26 {
		t.Errorf("expected stride 26, got %d", got)
	}
}
