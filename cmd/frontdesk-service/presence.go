// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/clock"
	"github.com/bureau-foundation/frontdesk/messaging"
)

// runPresenceRotation cycles the service account's presence status
// through the configured messages so users see a live desk. Returns
// immediately when no messages are configured. Best-effort: a failed
// update is logged and the rotation continues.
func runPresenceRotation(ctx context.Context, session messaging.Session, messages []string, interval time.Duration, clk clock.Clock, logger *slog.Logger) {
	if len(messages) == 0 {
		return
	}

	index := 0
	publish := func() {
		if err := session.SetPresence(ctx, "online", messages[index]); err != nil {
			logger.Debug("presence update failed", "error", err)
		}
		index = (index + 1) % len(messages)
	}
	publish()

	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}
