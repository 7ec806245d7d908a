// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/clock"
	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/messaging"
)

const (
	// defaultSyncTimeoutMS is the long-poll window the homeserver
	// holds a /sync open when no events are pending.
	defaultSyncTimeoutMS = 30000

	// syncRetryFloor and defaultSyncRetryCeiling bound the retry
	// backoff after /sync failures: start at the floor, double per
	// failure, never exceed the ceiling.
	syncRetryFloor          = time.Second
	defaultSyncRetryCeiling = 30 * time.Second
)

// SyncConfig configures the Matrix /sync long-poll loop.
type SyncConfig struct {
	// Filter is an inline JSON filter the homeserver applies to each
	// /sync response. The service supplies one scoped to the event
	// types it handles.
	Filter string

	// Timeout overrides the long-poll window, in milliseconds.
	// Zero takes defaultSyncTimeoutMS.
	Timeout int

	// MaxBackoff overrides the retry backoff ceiling. Zero takes
	// defaultSyncRetryCeiling.
	MaxBackoff time.Duration
}

func (c SyncConfig) timeoutMS() int {
	if c.Timeout == 0 {
		return defaultSyncTimeoutMS
	}
	return c.Timeout
}

func (c SyncConfig) retryCeiling() time.Duration {
	if c.MaxBackoff == 0 {
		return defaultSyncRetryCeiling
	}
	return c.MaxBackoff
}

// SyncHandler is called for each /sync response. Implementations
// process events (route messages, accept invites, update indexes) and
// return. The next /sync poll starts after the handler returns, which
// is what gives the relay its per-source ordering: every event in a
// batch is fully handled before the next batch is requested.
type SyncHandler func(ctx context.Context, response *messaging.SyncResponse)

// InitialSync runs the first Matrix /sync without a since token,
// which yields a full state snapshot. It returns the next_batch token
// the incremental loop continues from, plus the response itself so
// the caller can rebuild state from it.
//
// Unlike incremental sync, this returns immediately — the homeserver
// sends the current state without waiting for new events.
func InitialSync(ctx context.Context, session messaging.Session, filter string) (string, *messaging.SyncResponse, error) {
	response, err := session.Sync(ctx, messaging.SyncOptions{
		Filter: filter,
	})
	if err != nil {
		return "", nil, fmt.Errorf("initial sync: %w", err)
	}
	return response.NextBatch, response, nil
}

// RunSyncLoop long-polls /sync from sinceToken until ctx is
// cancelled, feeding each response to handler. Failures are retried
// with exponential backoff; a success resets it.
//
// The initial sync is the caller's job (InitialSync), processed
// before this loop starts. That split lets the service rebuild its
// state (ticket index, direct-room map) synchronously and only then
// go event-driven.
func RunSyncLoop(ctx context.Context, session messaging.Session, config SyncConfig, sinceToken string, handler SyncHandler, clk clock.Clock, logger *slog.Logger) {
	backoff := syncRetryFloor
	for ctx.Err() == nil {
		response, err := session.Sync(ctx, messaging.SyncOptions{
			Since:      sinceToken,
			Timeout:    config.timeoutMS(),
			SetTimeout: true,
			Filter:     config.Filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("sync error, backing off", "error", err, "backoff", backoff)
			if !sleepUnlessCancelled(ctx, clk, backoff) {
				return
			}
			backoff = min(backoff*2, config.retryCeiling())
			continue
		}

		backoff = syncRetryFloor
		sinceToken = response.NextBatch
		handler(ctx, response)
	}
}

// sleepUnlessCancelled waits for the given duration on clk. Reports
// false when ctx was cancelled before the wait elapsed.
func sleepUnlessCancelled(ctx context.Context, clk clock.Clock, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-clk.After(d):
		return true
	}
}

// AcceptInvites joins every room in the invite section and returns
// the rooms actually joined. Every direct conversation starts with a
// user inviting the service, so this runs against the initial sync
// and against each incremental batch that carries invites. A failed
// join is logged and skipped, leaving the invite pending on the
// homeserver.
func AcceptInvites(ctx context.Context, session messaging.Session, invites map[ref.RoomID]messaging.InvitedRoom, logger *slog.Logger) []ref.RoomID {
	accepted := make([]ref.RoomID, 0, len(invites))
	for roomID := range invites {
		logger.Info("joining invited room", "room_id", roomID.String())
		if _, err := session.JoinRoom(ctx, roomID); err != nil {
			logger.Error("invite join failed",
				"room_id", roomID.String(),
				"error", err,
			)
			continue
		}
		accepted = append(accepted, roomID)
	}
	return accepted
}
