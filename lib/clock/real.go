// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Real returns the Clock backed by the system time.
func Real() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

func (systemClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{
		C:     ticker.C,
		stop:  ticker.Stop,
		reset: ticker.Reset,
	}
}
