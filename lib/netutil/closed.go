// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is ordinary connection
// teardown: EOF, a closed listener or connection, a broken pipe, or a
// reset. These show up when a CLI client drops off the admin socket
// mid-request, or when shutdown closes the listener under an in-flight
// accept.
//
// A peer that full-closes its socket (instead of half-closing with
// CloseWrite) surfaces as ECONNRESET or EPIPE rather than EOF, so all
// four classify as expected.
func IsExpectedCloseError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return true
	}
	var errno syscall.Errno
	return errors.As(err, &errno) &&
		(errno == syscall.EPIPE || errno == syscall.ECONNRESET)
}
