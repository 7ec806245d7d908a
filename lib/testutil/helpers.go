// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"
)

// SocketDir returns a short-pathed temporary directory for Unix domain
// sockets, removed when the test finishes. sun_path caps socket paths
// at 108 bytes, and t.TempDir() under some runners nests deeply enough
// to blow past that, so the directory goes straight under /tmp.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "frontdesk-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N drawn from a process-wide
// counter. Reach for it instead of time.Now() when a test needs
// distinguishable transaction IDs, event IDs, or message bodies.
//
//	txnID := testutil.UniqueID("txn") // "txn-1", "txn-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
