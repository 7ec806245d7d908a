// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/frontdesk/lib/ref"
)

// GetState reads a state event from a room and unmarshals its content
// into T. The usual way to read typed frontdesk state:
//
//	marker, err := messaging.GetState[desk.TicketMarker](ctx, session, roomID, desk.EventTypeTicket, "")
//
// A room without the event yields M_NOT_FOUND (check with IsNotFound);
// content that does not fit T yields an unmarshal error.
func GetState[T any](ctx context.Context, session Session, roomID ref.RoomID, eventType ref.EventType, stateKey string) (T, error) {
	var result T
	content, err := session.GetStateEvent(ctx, roomID, eventType, stateKey)
	if err != nil {
		return result, fmt.Errorf("reading %s[%q] from room %s: %w", eventType, stateKey, roomID, err)
	}
	if err := json.Unmarshal(content, &result); err != nil {
		var zero T
		return zero, fmt.Errorf("decoding %s content from room %s: %w", eventType, roomID, err)
	}
	return result, nil
}
