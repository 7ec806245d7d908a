// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time surface production code is allowed to touch.
// Anything that would call time.Now, time.After, time.NewTicker, or
// time.Sleep takes a Clock instead — Real() in production, Fake() in
// tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. A non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering on C every interval.
	// Panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. Stop it when done.
//
// C has capacity 1, matching time.Ticker: a consumer that falls
// behind loses ticks instead of queueing them.
type Ticker struct {
	// C delivers ticks.
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

// Stop turns the ticker off. C stays open but receives nothing more.
func (t *Ticker) Stop() { t.stop() }

// Reset restarts the tick cycle at a new interval; the next tick
// lands after the new duration.
func (t *Ticker) Reset(d time.Duration) { t.reset(d) }
