// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"io"

	"github.com/bureau-foundation/frontdesk/lib/ref"
)

// Session is the surface of the Matrix client-server API that frontdesk's
// service code consumes. *DirectSession is the production implementation;
// tests substitute function-field mocks so that ticket flows can be
// exercised without a homeserver.
//
// Operator-only methods (AccessToken, DeviceID, SetDisplayName,
// CloseIdleConnections) are not part of this interface. Code that needs
// them should type-assert to *DirectSession.
type Session interface {
	// UserID returns the fully-qualified Matrix user ID of the session
	// (e.g., "@frontdesk:example.com").
	UserID() ref.UserID

	// Close releases any resources held by the session. Idempotent.
	Close() error

	// WhoAmI validates the session and returns the user ID.
	WhoAmI(ctx context.Context) (ref.UserID, error)

	// CreateRoom creates a new Matrix room.
	CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error)

	// JoinRoom joins a room by room ID. Returns the room ID. To join
	// by alias, resolve with ResolveAlias first.
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)

	// JoinedRooms returns the list of room IDs the user has joined.
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)

	// InviteUser invites a user to a room.
	InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error

	// KickUser removes a user from a room with an optional reason.
	KickUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID, reason string) error

	// LeaveRoom leaves a room by ID.
	LeaveRoom(ctx context.Context, roomID ref.RoomID) error

	// ForgetRoom forgets a previously left room.
	ForgetRoom(ctx context.Context, roomID ref.RoomID) error

	// SendMessage sends an m.room.message event. Returns the event ID.
	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error)

	// SendEvent sends an event of any type to a room. Returns the event ID.
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error)

	// SendStateEvent sends a state event to a room. Returns the event ID.
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)

	// GetStateEvent fetches a specific state event's content from a room.
	// Returns the raw JSON content for the caller to unmarshal.
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)

	// GetRoomState fetches all current state events from a room.
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error)

	// GetRoomMembers returns the members of a room.
	GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error)

	// GetDisplayName fetches a user's display name.
	GetDisplayName(ctx context.Context, userID ref.UserID) (string, error)

	// RoomMessages fetches paginated messages from a room.
	RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error)

	// Sync performs an incremental sync with the homeserver.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)

	// ResolveAlias resolves a room alias to a room ID.
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)

	// UploadMedia uploads content to the media repository. Returns the
	// MXC URI.
	UploadMedia(ctx context.Context, contentType, filename string, body io.Reader) (string, error)

	// DownloadMedia streams content from the media repository by MXC URI.
	DownloadMedia(ctx context.Context, mxcURI string) (*MediaDownload, error)

	// SetPresence publishes the session user's presence state and
	// optional status message.
	SetPresence(ctx context.Context, presence, statusMsg string) error
}

// Compile-time check: *DirectSession implements Session.
var _ Session = (*DirectSession)(nil)
