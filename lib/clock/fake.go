// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given time. Nothing moves
// until Advance is called; timer, ticker, and sleep operations park as
// pending entries that fire when the clock passes their deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	clk := &FakeClock{current: initial}
	clk.registered = sync.NewCond(&clk.mu)
	return clk
}

// FakeClock is a deterministic Clock for tests. Time moves only under
// Advance; everything waiting on the clock blocks until an Advance
// carries it past its deadline.
type FakeClock struct {
	mu         sync.Mutex
	current    time.Time
	pending    []*timer
	registered *sync.Cond
}

// timer is one parked After, Sleep, or ticker entry.
type timer struct {
	deadline time.Time

	// ch receives the fire time when the deadline passes.
	ch chan time.Time

	// interval is non-zero for tickers, which re-arm at
	// deadline+interval after each fire.
	interval time.Duration

	// cancelled is set by Ticker.Stop. Cancelled entries never fire
	// and fall out of the pending list on the next Advance.
	cancelled bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// schedule parks a new entry d from now and returns it.
func (c *FakeClock) schedule(d, interval time.Duration) *timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &timer{
		deadline: c.current.Add(d),
		ch:       make(chan time.Time, 1),
		interval: interval,
	}
	c.pending = append(c.pending, entry)
	c.registered.Broadcast()
	return entry
}

// After returns a channel that receives once d has elapsed on the
// fake clock. A non-positive d delivers immediately without parking
// an entry.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	if d <= 0 {
		ch := make(chan time.Time, 1)
		ch <- c.Now()
		return ch
	}
	return c.schedule(d, 0).ch
}

// NewTicker returns a Ticker firing every interval of fake time.
// Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	entry := c.schedule(d, d)
	return &Ticker{
		C: entry.ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.cancelled = true
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.interval = d
			entry.deadline = c.current.Add(d)
			entry.cancelled = false
			c.registered.Broadcast()
		},
	}
}

// Sleep blocks the calling goroutine until an Advance passes the
// deadline. A non-positive d returns immediately.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every parked entry
// whose deadline now lies in the past, in deadline order.
//
// Sends are non-blocking, matching time.Ticker's drop-if-full
// behavior: when an advance spans several ticker intervals, the
// ticker fires once per interval and ticks that overflow the
// single-slot channel are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	// Re-arming tickers can come due again inside the same window,
	// so keep draining until nothing more expires.
	for {
		due := c.expire(target)
		if len(due) == 0 {
			return
		}
		slices.SortFunc(due, func(a, b *timer) int {
			return a.deadline.Compare(b.deadline)
		})
		for _, entry := range due {
			select {
			case entry.ch <- target:
			default:
			}
		}
	}
}

// expire removes entries due at target from the pending list,
// re-arms tickers, and returns what should fire.
func (c *FakeClock) expire(target time.Time) []*timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*timer
	for _, entry := range c.pending {
		switch {
		case entry.cancelled:
			// Dropped.
		case entry.deadline.After(target):
			remaining = append(remaining, entry)
		default:
			due = append(due, entry)
		}
	}

	for _, entry := range due {
		if entry.interval > 0 {
			entry.deadline = entry.deadline.Add(entry.interval)
			remaining = append(remaining, entry)
		}
	}

	c.pending = remaining
	return due
}

// WaitForTimers blocks until at least n entries are parked on the
// clock. This is the synchronization point between a goroutine
// registering a timer and the test advancing time:
//
//	go func() { clk.Sleep(5 * time.Second) }()
//	clk.WaitForTimers(1)         // blocks until Sleep has parked
//	clk.Advance(5 * time.Second) // fires it deterministically
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of parked, non-cancelled entries.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *FakeClock) activeLocked() int {
	count := 0
	for _, entry := range c.pending {
		if !entry.cancelled {
			count++
		}
	}
	return count
}
