// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/archive"
	"github.com/bureau-foundation/frontdesk/lib/clock"
)

func TestResolveHash(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	arc, err := archive.Open(t.TempDir(), nil, clk)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer arc.Close()

	first, err := arc.Put("ticket-0001-alice", []byte("transcript one"))
	if err != nil {
		t.Fatalf("storing first entry: %v", err)
	}
	second, err := arc.Put("ticket-0002-bob", []byte("transcript two"))
	if err != nil {
		t.Fatalf("storing second entry: %v", err)
	}

	t.Run("full hash", func(t *testing.T) {
		resolved, err := resolveHash(arc, first.String())
		if err != nil {
			t.Fatalf("resolving full hash: %v", err)
		}
		if resolved != first {
			t.Errorf("resolved %s, want %s", resolved, first)
		}
	})

	t.Run("unique prefix", func(t *testing.T) {
		// The two hashes differ somewhere; find the shortest
		// distinguishing prefix of the second.
		firstHex, secondHex := first.String(), second.String()
		prefixLen := 1
		for firstHex[:prefixLen] == secondHex[:prefixLen] {
			prefixLen++
		}
		resolved, err := resolveHash(arc, secondHex[:prefixLen])
		if err != nil {
			t.Fatalf("resolving prefix %q: %v", secondHex[:prefixLen], err)
		}
		if resolved != second {
			t.Errorf("resolved %s, want %s", resolved, second)
		}
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		// The empty prefix matches every entry.
		_, err := resolveHash(arc, "")
		if err == nil {
			t.Fatal("expected an error for an ambiguous prefix")
		}
		if !strings.Contains(err.Error(), "ambiguous") {
			t.Errorf("error %q does not mention ambiguity", err)
		}
	})

	t.Run("no match", func(t *testing.T) {
		_, err := resolveHash(arc, "zzzz")
		if err == nil {
			t.Fatal("expected an error for an unmatched prefix")
		}
		if !strings.Contains(err.Error(), "no archive entry") {
			t.Errorf("error %q does not report the missing entry", err)
		}
	})
}
