// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestBadRequest_CodeOf(t *testing.T) {
	err := BadRequest("bad value %d", 7)
	code, msg := CodeOf(err)
	if code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, code)
	}
	if msg != "bad value 7" {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestNotFound_CodeOf(t *testing.T) {
	code, _ := CodeOf(NotFound("resource %q", "foo"))
	if code != http.StatusNotFound {
		t.Errorf("expected %d, got %d", http.StatusNotFound, code)
	}
}

func TestUnauthorized_CodeOf(t *testing.T) {
	code, _ := CodeOf(Unauthorized("nope"))
	if code != http.StatusUnauthorized {
		t.Errorf("expected %d, got %d", http.StatusUnauthorized, code)
	}
}

func TestInternal_WrapsCauseAndReturns500(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Internal(cause, "reading %s", "thing")

	code, msg := CodeOf(err)
	if code != http.StatusInternalServerError {
		t.Errorf("expected %d, got %d", http.StatusInternalServerError, code)
	}
	if msg != "reading thing" {
		t.Errorf("unexpected message: %q", msg)
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to unwrap to cause")
	}
}

func TestCodeOf_PlainErrorIsBadRequest(t *testing.T) {
	code, msg := CodeOf(errors.New("whatever"))
	if code != http.StatusBadRequest {
		t.Errorf("expected %d for a plain error, got %d", http.StatusBadRequest, code)
	}
	if msg != "whatever" {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestErrDisconnected_IsNotAnAPIError(t *testing.T) {
	// ErrDisconnected is a sentinel the Chunker checks for directly; it
	// still maps through CodeOf like any other error for callers that
	// don't special-case it.
	code, _ := CodeOf(ErrDisconnected)
	if code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, code)
	}
}
