// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
)

// Standard Matrix error codes, as they appear in the errcode field of
// homeserver error responses.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnrecognized  = "M_UNRECOGNIZED"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeInvalidParam  = "M_INVALID_PARAM"
	ErrCodeMissingParam  = "M_MISSING_PARAM"
	ErrCodeRoomInUse     = "M_ROOM_IN_USE"
	ErrCodeTooLarge      = "M_TOO_LARGE"
)

// MatrixError is the structured error body a homeserver returns on a
// non-2xx response. Every API method wraps it with %w, so use
// errors.As to get at the fields:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) && matrixErr.Code == ErrCodeNotFound { ... }
//
// or one of the helpers below for the common codes.
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN").
	Code string `json:"errcode"`
	// Message is the server's human-readable description.
	Message string `json:"error"`
	// StatusCode is the HTTP status of the response, filled in by
	// the client rather than parsed from the body.
	StatusCode int `json:"-"`
	// RetryAfterMS is the backoff the server requests on
	// M_LIMIT_EXCEEDED, in milliseconds. Zero otherwise.
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsMatrixError reports whether err is (or wraps) a *MatrixError
// carrying the given code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	return errors.As(err, &matrixErr) && matrixErr.Code == code
}

// IsNotFound reports whether err is a Matrix M_NOT_FOUND response.
// State reads and media downloads use this to tell "gone" (removed
// out from under us) apart from real failures.
func IsNotFound(err error) bool {
	return IsMatrixError(err, ErrCodeNotFound)
}

// IsForbidden reports whether err is a Matrix M_FORBIDDEN response.
// Room creation and invite paths treat this as missing permissions to
// report, not a fatal fault.
func IsForbidden(err error) bool {
	return IsMatrixError(err, ErrCodeForbidden)
}
