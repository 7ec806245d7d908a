// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock makes time injectable so tests never sleep.
//
// Code that would reach for time.Now, time.After, time.NewTicker, or
// time.Sleep takes a Clock instead: Real() in production, Fake() in
// tests. Everything time-driven in frontdesk — intake reply timeouts,
// presence rotation, sync retry backoff, uptime reporting — runs
// through this interface.
//
// # Wiring Pattern
//
// Structs that use time carry a Clock field:
//
//	type Flow struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// Production constructs with clock.Real(). A test freezes time at a
// known instant and drives it explicitly:
//
//	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	f := &Flow{clock: clk}
//	// ... start goroutines ...
//	clk.WaitForTimers(1)            // goroutine has parked its timer
//	clk.Advance(180 * time.Second)  // fire the timeout deterministically
//
// # Synchronization
//
// Calling Sleep, After, or NewTicker on a FakeClock parks a pending
// entry. WaitForTimers blocks until a given number of entries are
// parked, which closes the race between a goroutine registering its
// timer and the test advancing the clock — the race that real-time
// tests paper over with time.Sleep.
package clock
