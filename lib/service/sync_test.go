// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/clock"
	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/lib/testutil"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// fakeSyncSession wires just the Session methods the sync helpers
// touch. Anything else panics through the embedded nil interface.
type fakeSyncSession struct {
	messaging.Session
	sync     func(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error)
	joinRoom func(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)
}

func (s *fakeSyncSession) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	return s.sync(ctx, options)
}

func (s *fakeSyncSession) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	return s.joinRoom(ctx, roomID)
}

func TestInitialSync(t *testing.T) {
	session := &fakeSyncSession{
		sync: func(_ context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
			if options.Since != "" {
				t.Errorf("initial sync sent Since = %q, want empty", options.Since)
			}
			if options.Filter != `{"room":{}}` {
				t.Errorf("Filter = %q, want the caller's filter", options.Filter)
			}
			return &messaging.SyncResponse{NextBatch: "s-1"}, nil
		},
	}

	since, response, err := InitialSync(context.Background(), session, `{"room":{}}`)
	if err != nil {
		t.Fatalf("InitialSync() error: %v", err)
	}
	if since != "s-1" {
		t.Errorf("since = %q, want s-1", since)
	}
	if response == nil {
		t.Error("expected the full response for state rebuilding")
	}
}

func TestInitialSyncError(t *testing.T) {
	session := &fakeSyncSession{
		sync: func(context.Context, messaging.SyncOptions) (*messaging.SyncResponse, error) {
			return nil, fmt.Errorf("homeserver unreachable")
		},
	}
	if _, _, err := InitialSync(context.Background(), session, ""); err == nil {
		t.Error("expected the sync error to propagate")
	}
}

func TestRunSyncLoopAdvancesToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	session := &fakeSyncSession{
		sync: func(_ context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
			calls++
			switch calls {
			case 1:
				if options.Since != "start" {
					t.Errorf("first Since = %q, want start", options.Since)
				}
				if !options.SetTimeout || options.Timeout != 30000 {
					t.Errorf("long-poll timeout = %d (set=%v), want default 30000", options.Timeout, options.SetTimeout)
				}
				return &messaging.SyncResponse{NextBatch: "batch-1"}, nil
			case 2:
				if options.Since != "batch-1" {
					t.Errorf("second Since = %q, want batch-1", options.Since)
				}
				return &messaging.SyncResponse{NextBatch: "batch-2"}, nil
			default:
				cancel()
				return nil, ctx.Err()
			}
		},
	}

	var seen []string
	handler := func(_ context.Context, response *messaging.SyncResponse) {
		seen = append(seen, response.NextBatch)
	}

	RunSyncLoop(ctx, session, SyncConfig{}, "start", handler, clock.Fake(time.Unix(0, 0)), testLogger())

	if !slices.Equal(seen, []string{"batch-1", "batch-2"}) {
		t.Errorf("handler saw %v, want [batch-1 batch-2]", seen)
	}
}

func TestRunSyncLoopRetriesWithBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Fake(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))

	var mu sync.Mutex
	var calls int
	session := &fakeSyncSession{
		sync: func(_ context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n <= 2 {
				return nil, fmt.Errorf("homeserver unreachable")
			}
			// The token must not advance across failed polls.
			if options.Since != "start" {
				t.Errorf("Since after retries = %q, want start", options.Since)
			}
			return &messaging.SyncResponse{NextBatch: "recovered"}, nil
		},
	}

	delivered := make(chan string, 1)
	done := make(chan struct{}, 1)
	go func() {
		RunSyncLoop(ctx, session, SyncConfig{}, "start", func(_ context.Context, response *messaging.SyncResponse) {
			delivered <- response.NextBatch
			cancel()
		}, clk, testLogger())
		done <- struct{}{}
	}()

	// First failure parks the loop for one second, the second for
	// two. Release each in turn.
	clk.WaitForTimers(1)
	clk.Advance(time.Second)
	clk.WaitForTimers(1)
	clk.Advance(2 * time.Second)

	if got := testutil.RequireReceive(t, delivered, 5*time.Second, "loop never recovered"); got != "recovered" {
		t.Errorf("recovered batch = %q, want recovered", got)
	}
	testutil.RequireReceive(t, done, 5*time.Second, "loop did not stop after cancellation")
}

func TestAcceptInvites(t *testing.T) {
	goodRoom := ref.MustParseRoomID("!welcome:local")
	badRoom := ref.MustParseRoomID("!revoked:local")

	session := &fakeSyncSession{
		joinRoom: func(_ context.Context, roomID ref.RoomID) (ref.RoomID, error) {
			if roomID == badRoom {
				return ref.RoomID{}, fmt.Errorf("forbidden")
			}
			return roomID, nil
		},
	}

	invites := map[ref.RoomID]messaging.InvitedRoom{
		goodRoom: {},
		badRoom:  {},
	}
	accepted := AcceptInvites(context.Background(), session, invites, testLogger())

	if len(accepted) != 1 || accepted[0] != goodRoom {
		t.Errorf("accepted = %v, want just %s", accepted, goodRoom)
	}
}
