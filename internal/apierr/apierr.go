// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package apierr defines the small tagged-union error taxonomy that
// crosses the boundary between resource handlers and the HTTP router.
//
// Handlers never write an HTTP status directly; they return a Go error,
// optionally one of these wrapped forms, and the router is the only place
// that converts an error into a status code and a response body.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an error carrying an HTTP status code.
type Error struct {
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// BadRequest builds a 400 with the given message.
func BadRequest(format string, args ...any) error {
	return &Error{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized builds a 401.
func Unauthorized(format string, args ...any) error {
	return &Error{Code: http.StatusUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a 404.
func NotFound(format string, args ...any) error {
	return &Error{Code: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// Internal builds a 500 wrapping cause: errors.Is/As reach cause through
// Unwrap, and Error() appends it after the message.
func Internal(cause error, format string, args ...any) error {
	return &Error{Code: http.StatusInternalServerError, Message: fmt.Sprintf(format, args...), cause: cause}
}

// ErrDisconnected is a non-HTTP sentinel: the client closed the
// connection mid-stream. It never reaches the router's error mapping —
// the Chunker observes it directly from a failed flush and aborts the
// stream without emitting a terminator.
var ErrDisconnected = errors.New("apierr: client disconnected")

// CodeOf returns the HTTP status for err: an *Error carries its own
// code; any other error is a plain 400.
func CodeOf(err error) (code int, message string) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message
	}
	return http.StatusBadRequest, err.Error()
}
