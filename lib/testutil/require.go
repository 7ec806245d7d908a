// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the slice of testing.TB these helpers need. Taking an
// interface keeps them usable from both tests and benchmarks.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the
// test. It replaces hand-rolled select/time.After blocks so tests fail
// with a message instead of hitting the test binary deadline.
//
//	event := testutil.RequireReceive(t, relayed, 5*time.Second, "relay output")
//
// A channel that closes without sending also fails the test.
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", describe(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, describe(msgAndArgs))
	}
	panic("unreachable")
}

// RequireClosed waits for ch to close (or deliver a value) within
// timeout, or fails the test. Use it for readiness channels that
// signal by closing.
//
//	testutil.RequireClosed(t, handlerStarted, 5*time.Second, "handler entry")
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, describe(msgAndArgs))
	}
}

// describe renders the trailing message arguments: a bare string, a
// format string plus args, or any lone value.
func describe(msgAndArgs []any) string {
	switch len(msgAndArgs) {
	case 0:
		return "(no message)"
	case 1:
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}
