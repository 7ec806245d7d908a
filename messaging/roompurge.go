// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/frontdesk/lib/ref"
)

// RoomPurger removes a room from the homeserver entirely. The Matrix
// client-server API has no room deletion — leaving a room only removes
// the caller's membership — so purging requires server-specific admin
// access.
//
// Two implementations exist:
//   - SynapsePurger: uses the Synapse admin HTTP API room deletion
//     endpoint
//   - ContinuwuityPurger: sends !admin commands to the Continuwuity
//     admin room and parses the bot's text responses
//
// Use [NewRoomPurger] to auto-detect the homeserver type and return the
// appropriate implementation. When neither is available (the service
// account is not a server admin), callers fall back to retiring the
// room: kick remaining members, leave, and forget.
type RoomPurger interface {
	// PurgeRoom removes all local users from the room and deletes its
	// history from the server. The room ID becomes permanently unusable.
	PurgeRoom(ctx context.Context, roomID ref.RoomID) error
}

// NewRoomPurger auto-detects the homeserver type and returns the
// appropriate [RoomPurger] implementation.
//
// Detection strategy: probes GET /_synapse/admin/v1/server_version.
// Synapse returns 200 OK. Continuwuity returns M_UNRECOGNIZED.
// Other errors (network, auth) are returned as-is — the function
// does not silently fall back on transient failures.
//
// For Continuwuity, this joins the server's built-in admin room and
// verifies access. The room history persists as an audit trail of
// purge operations.
func NewRoomPurger(ctx context.Context, session *DirectSession) (RoomPurger, error) {
	if probeSynapseAdmin(ctx, session) {
		slog.Info("detected Synapse admin API")
		return &SynapsePurger{session: session}, nil
	}

	slog.Info("Synapse admin API not available, setting up Continuwuity admin room")
	purger, err := newContinuwuityPurger(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("set up homeserver room purge interface: %w", err)
	}
	return purger, nil
}

// probeSynapseAdmin checks whether the homeserver exposes the Synapse
// admin API by probing the server version endpoint.
func probeSynapseAdmin(ctx context.Context, session *DirectSession) bool {
	_, err := session.client.doRequest(ctx, http.MethodGet,
		"/_synapse/admin/v1/server_version", session.accessToken, nil)
	return err == nil
}

// --- SynapsePurger ---

// SynapsePurger implements [RoomPurger] using the Synapse admin API v2
// room deletion endpoint. Deletion is asynchronous on the server side:
// the endpoint returns a delete_id and Synapse removes the room in the
// background. Frontdesk treats acceptance as success — the ticket store
// entry is already gone by the time the purge runs, so a background
// failure only leaves an orphaned room for the operator to sweep.
type SynapsePurger struct {
	session *DirectSession
}

// PurgeRoom kicks all local users from the room and removes it from the
// server, including its history. Corresponds to
// DELETE /_synapse/admin/v2/rooms/{roomID}.
func (p *SynapsePurger) PurgeRoom(ctx context.Context, roomID ref.RoomID) error {
	path := "/_synapse/admin/v2/rooms/" + url.PathEscape(roomID.String())
	requestBody := map[string]any{
		"block": false,
		"purge": true,
	}

	body, err := p.session.client.doRequest(ctx, http.MethodDelete, path, p.session.accessToken, requestBody)
	if err != nil {
		return fmt.Errorf("synapse admin delete room %q: %w", roomID, err)
	}

	var response struct {
		DeleteID string `json:"delete_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("parse synapse delete room response: %w", err)
	}

	slog.Info("room purge accepted",
		"room_id", roomID,
		"delete_id", response.DeleteID,
	)
	return nil
}

// --- ContinuwuityPurger ---

// ContinuwuityPurger implements [RoomPurger] by sending !admin commands
// to the Continuwuity homeserver's admin bot user in the server admin
// room. The bot processes the command and responds with a text message
// containing the result.
//
// The admin room is joined once during construction and reused for all
// subsequent commands. The room history serves as an audit trail of
// purge operations.
type ContinuwuityPurger struct {
	session   *DirectSession
	adminRoom ref.RoomID
	botUserID ref.UserID
}

// newContinuwuityPurger creates a ContinuwuityPurger by joining the
// server's built-in admin room (#admins:<server>). The admin room is
// created automatically by Continuwuity at startup, and admin users
// receive an invite. Commands sent in this room are processed by the
// @conduit:<server> bot user.
func newContinuwuityPurger(ctx context.Context, session *DirectSession) (*ContinuwuityPurger, error) {
	server, err := ref.ServerFromUserID(session.UserID().String())
	if err != nil {
		return nil, fmt.Errorf("determine server name from admin session: %w", err)
	}

	botUserID, err := ref.ParseUserID("@conduit:" + server.String())
	if err != nil {
		return nil, fmt.Errorf("construct bot user ID: %w", err)
	}

	// The admin room has a well-known alias #admins:<server>.
	adminAlias, err := ref.ParseRoomAlias("#admins:" + server.String())
	if err != nil {
		return nil, fmt.Errorf("construct admin room alias: %w", err)
	}

	adminRoomID, err := session.ResolveAlias(ctx, adminAlias)
	if err != nil {
		return nil, fmt.Errorf("resolve admin room alias %s: %w", adminAlias, err)
	}

	// Accept the pending invite if we haven't joined yet. JoinRoom
	// is idempotent — it succeeds for rooms we already belong to.
	if _, err := session.JoinRoom(ctx, adminRoomID); err != nil {
		return nil, fmt.Errorf("join admin room %s: %w", adminRoomID, err)
	}

	slog.Info("connected to Continuwuity admin room",
		"room_id", adminRoomID,
		"bot_user", botUserID,
		"alias", adminAlias,
	)

	return &ContinuwuityPurger{
		session:   session,
		adminRoom: adminRoomID,
		botUserID: botUserID,
	}, nil
}

// PurgeRoom sends the room deletion command to the admin bot and waits
// for its confirmation.
func (p *ContinuwuityPurger) PurgeRoom(ctx context.Context, roomID ref.RoomID) error {
	command := fmt.Sprintf("!admin rooms purge %s", roomID)
	return p.sendCommand(ctx, command, "purge-room")
}

// sendCommand sends an admin command to the Continuwuity bot and waits
// for the response. Returns nil on success, or an error containing the
// bot's response text on failure.
func (p *ContinuwuityPurger) sendCommand(ctx context.Context, command string, operationName string) error {
	// Create a watcher BEFORE sending the command so we don't miss
	// the bot's response.
	watcher, err := WatchRoom(ctx, p.session, p.adminRoom, &SyncFilter{
		TimelineTypes: []string{"m.room.message"},
	})
	if err != nil {
		return fmt.Errorf("watch admin room for %s response: %w", operationName, err)
	}

	// Send the command as a plain text message.
	if _, err := p.session.SendMessage(ctx, p.adminRoom, NewTextMessage(command)); err != nil {
		return fmt.Errorf("send %s command to admin room: %w", operationName, err)
	}

	// Wait for the bot's response.
	event, err := watcher.WaitForEvent(ctx, func(event Event) bool {
		if event.Sender != p.botUserID {
			return false
		}
		// Accept any message from the bot (m.text, m.notice, etc.).
		return event.Type == "m.room.message"
	})
	if err != nil {
		return fmt.Errorf("waiting for %s response from admin bot: %w", operationName, err)
	}

	return parseAdminResponse(event, operationName)
}

// parseAdminResponse extracts the plain text body from a bot response
// event and checks for error indicators.
func parseAdminResponse(event Event, operationName string) error {
	// Extract the body from the event content.
	contentBytes, err := json.Marshal(event.Content)
	if err != nil {
		return fmt.Errorf("marshal admin response content: %w", err)
	}

	var content struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(contentBytes, &content); err != nil {
		return fmt.Errorf("parse admin response content: %w", err)
	}

	body := content.Body
	if body == "" {
		return fmt.Errorf("admin bot returned empty response for %s", operationName)
	}

	// Check for error indicators in the response text.
	bodyLower := strings.ToLower(body)
	errorIndicators := []string{
		"failed",
		"error",
		"invalid",
		"not found",
		"no such room",
		"could not",
		"unable to",
		"unknown command",
	}
	for _, indicator := range errorIndicators {
		if strings.Contains(bodyLower, indicator) {
			return fmt.Errorf("admin %s failed: %s", operationName, body)
		}
	}

	slog.Info("admin command succeeded",
		"operation", operationName,
		"response", body,
	)
	return nil
}
