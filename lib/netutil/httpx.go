// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds the network I/O helpers shared by the frontdesk
// binaries.
//
// ReadResponse and ErrorBody cap every HTTP body read at MaxResponseSize
// so a misbehaving or hostile server cannot force an unbounded
// allocation. They are meant for JSON API responses (the Matrix
// client-server API and the admin socket protocol); media downloads
// stream incrementally with io.Copy and never pass through here.
//
// IsExpectedCloseError classifies the errors produced by ordinary
// connection teardown, so accept loops and media streams can drop
// routine disconnects instead of logging them as failures.
package netutil

import (
	"io"
)

// MaxResponseSize caps JSON API body reads at 256 MB. Real responses
// are orders of magnitude smaller; the cap only matters when a server
// misbehaves, so it is set far above anything legitimate.
const MaxResponseSize int64 = 256 << 20

// bounded caps reads from r at MaxResponseSize.
func bounded(r io.Reader) io.Reader {
	return io.LimitReader(r, MaxResponseSize)
}

// ReadResponse reads an HTTP response body, capped at MaxResponseSize.
// Use it wherever io.ReadAll would otherwise read a response directly.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(bounded(body))
}

// ErrorBody reads an HTTP error response body for inclusion in an
// error message. Read failures yield whatever prefix was received; a
// partial or empty body is still useful diagnostically.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(bounded(body))
	return string(data)
}
