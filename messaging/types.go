// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"io"

	"github.com/bureau-foundation/frontdesk/lib/ref"
)

// LoginRequest is the body of POST /login for password authentication.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// CreateRoomRequest is the body of POST /createRoom. Zero-valued
// fields are omitted so the server applies its defaults.
type CreateRoomRequest struct {
	Name                      string         `json:"name,omitempty"`
	Topic                     string         `json:"topic,omitempty"`
	Alias                     string         `json:"room_alias_name,omitempty"` // localpart only; the server adds # and :server
	RoomVersion               string         `json:"room_version,omitempty"`    // empty takes the server default
	Visibility                string         `json:"visibility,omitempty"`      // "public" lists the room in the directory
	Preset                    string         `json:"preset,omitempty"`          // "private_chat", "public_chat", "trusted_private_chat"
	Invite                    []string       `json:"invite,omitempty"`
	IsDirect                  bool           `json:"is_direct,omitempty"`        // marks the room as a direct chat
	CreationContent           map[string]any `json:"creation_content,omitempty"` // {"type": "m.space"} makes the room a space
	InitialState              []StateEvent   `json:"initial_state,omitempty"`
	PowerLevelContentOverride map[string]any `json:"power_level_content_override,omitempty"` // merged over the preset's power levels
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// StateEvent is a state event in a createRoom initial_state list.
type StateEvent struct {
	Type     ref.EventType `json:"type"`
	StateKey string        `json:"state_key"`
	Content  any           `json:"content"`
}

// InviteRequest is the body of the room /invite endpoint.
type InviteRequest struct {
	UserID ref.UserID `json:"user_id"`
}

// KickRequest is the body of the room /kick endpoint.
type KickRequest struct {
	UserID ref.UserID `json:"user_id"`
	Reason string     `json:"reason,omitempty"`
}

// Event is a Matrix event as the server returns it. Timeline and
// state events share this shape; a non-nil StateKey marks a state
// event.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// EventUnsigned carries server-attached event metadata. TransactionID
// is echoed back only on events this session sent itself, which is
// how a client recognizes its own messages in the sync stream.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// SendEventResponse is returned by SendMessage, SendEvent, and SendStateEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// RoomMessagesOptions controls pagination for RoomMessages.
type RoomMessagesOptions struct {
	From      string // pagination token; "" starts from the newest events
	Direction string // "b" toward older events, "f" toward newer
	Limit     int    // page size; 0 takes the server default
}

// RoomMessagesResponse is one page of room history. End is the token
// for the next page; an End equal to Start means the history is
// exhausted.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Chunk []Event `json:"chunk"`
}

// SyncOptions controls a /sync request.
type SyncOptions struct {
	Since      string // next_batch from the previous sync; "" for the initial sync
	Timeout    int    // long-poll wait in milliseconds
	SetTimeout bool   // send the timeout parameter even when Timeout is 0
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync. Frontdesk's sync
// filter excludes presence and account data, so only the room sections
// are modeled.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups per-room sync data by membership state. Room
// IDs key each map; ref.RoomID's TextUnmarshaler validates them as
// they decode.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom is the sync data for a room the user is joined to.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom is the sync data for a pending invite. InviteState is
// the stripped-down state the server shares before joining; it is
// where the is_direct flag on the inviter's membership event lives.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom is the sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection holds timeline events from a sync response. Limited
// means the server truncated the gap since the last sync; PrevBatch
// is the token to page backward through what was skipped.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection holds state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// ResolveAliasResponse is returned by ResolveAlias.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}

// JoinedRoomsResponse is returned by JoinedRooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// RoomMember is one member of a room, flattened from its m.room.member
// state event by GetRoomMembers.
type RoomMember struct {
	UserID      ref.UserID `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Membership  string     `json:"membership"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
}

// RoomMembersResponse is returned by the /members endpoint.
type RoomMembersResponse struct {
	Chunk []RoomMemberEvent `json:"chunk"`
}

// RoomMemberEvent is a member state event from the /members endpoint.
type RoomMemberEvent struct {
	Type     string            `json:"type"`
	StateKey string            `json:"state_key"`
	Sender   ref.UserID        `json:"sender"`
	Content  RoomMemberContent `json:"content"`
}

// RoomMemberContent is the content of an m.room.member state event.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// UploadResponse is returned by UploadMedia.
type UploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// MediaDownload is returned by DownloadMedia. Body streams the content
// from the homeserver; the caller must close it. Size is -1 when the
// server did not send a Content-Length header.
type MediaDownload struct {
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// DisplayNameResponse is returned by the /profile displayname endpoint.
type DisplayNameResponse struct {
	DisplayName string `json:"displayname"`
}

// DisplayNameRequest is the body for setting a display name.
type DisplayNameRequest struct {
	DisplayName string `json:"displayname"`
}

// SetPresenceRequest is the body of PUT /presence/{userId}/status.
type SetPresenceRequest struct {
	// Presence is the desired state: "online", "unavailable", or "offline".
	Presence string `json:"presence"`

	// StatusMsg is an optional human-readable status message. Frontdesk
	// rotates a short activity line through it.
	StatusMsg string `json:"status_msg,omitempty"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
