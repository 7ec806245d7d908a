// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/frontdesk/lib/ref"
	"github.com/bureau-foundation/frontdesk/lib/secret"
)

// DirectSession is an authenticated Matrix session: a Client plus an
// access token. Sessions are lightweight; the token lives in a
// secret.Buffer (mmap-backed, locked against swap, excluded from core
// dumps), so Close must be called when the session is done.
type DirectSession struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    string

	// txnCounter disambiguates transaction IDs issued within the
	// same millisecond.
	txnCounter atomic.Int64
}

// UserID returns the fully-qualified Matrix user ID (e.g., "@frontdesk:example.com").
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// AccessToken copies the token out of guarded memory into a heap
// string. Use only at boundaries that demand a string, such as
// writing the session file; pass the DirectSession itself otherwise.
func (s *DirectSession) AccessToken() string {
	return s.accessToken.String()
}

// DeviceID returns the device ID, or "" for token-restored sessions.
func (s *DirectSession) DeviceID() string {
	return s.deviceID
}

// CloseIdleConnections drops pooled HTTP connections so the next
// request dials fresh. Call after a sync error.
func (s *DirectSession) CloseIdleConnections() {
	s.client.CloseIdleConnections()
}

// Close zeros and unmaps the access token. Idempotent.
func (s *DirectSession) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// roomPath builds /_matrix/client/v3/rooms/{roomID}/... with every
// segment escaped.
func roomPath(roomID ref.RoomID, segments ...string) string {
	var b strings.Builder
	b.WriteString("/_matrix/client/v3/rooms/")
	b.WriteString(url.PathEscape(roomID.String()))
	for _, segment := range segments {
		b.WriteString("/")
		b.WriteString(url.PathEscape(segment))
	}
	return b.String()
}

// apiCall performs an authenticated request and, when result is
// non-nil, decodes the JSON response into it. Non-2xx responses
// surface as *MatrixError via the underlying client.
func (s *DirectSession) apiCall(ctx context.Context, method, path string, requestBody, result any, query ...url.Values) error {
	body, err := s.client.doRequest(ctx, method, path, s.accessToken, requestBody, query...)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// WhoAmI asks the homeserver which user the token belongs to. The
// cheapest way to find out whether a stored token is still alive.
func (s *DirectSession) WhoAmI(ctx context.Context) (ref.UserID, error) {
	var response WhoAmIResponse
	if err := s.apiCall(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", nil, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami: %w", err)
	}
	return response.UserID, nil
}

// CreateRoom creates a new Matrix room.
func (s *DirectSession) CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error) {
	var response CreateRoomResponse
	if err := s.apiCall(ctx, http.MethodPost, "/_matrix/client/v3/createRoom", request, &response); err != nil {
		return nil, fmt.Errorf("messaging: create room: %w", err)
	}
	s.client.logger.Info("matrix room created",
		"room_id", response.RoomID,
		"alias", request.Alias,
		"name", request.Name,
	)
	return &response, nil
}

// JoinRoom joins a room by ID and returns the canonical room ID the
// server reports.
func (s *DirectSession) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	var response struct {
		RoomID ref.RoomID `json:"room_id"`
	}
	if err := s.apiCall(ctx, http.MethodPost, path, struct{}{}, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %s: %w", roomID, err)
	}
	return response.RoomID, nil
}

// JoinedRooms returns the room IDs the user is currently joined to.
func (s *DirectSession) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	var response JoinedRoomsResponse
	if err := s.apiCall(ctx, http.MethodGet, "/_matrix/client/v3/joined_rooms", nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: joined rooms: %w", err)
	}
	return response.JoinedRooms, nil
}

// InviteUser invites a user to a room.
func (s *DirectSession) InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error {
	err := s.apiCall(ctx, http.MethodPost, roomPath(roomID, "invite"), InviteRequest{UserID: userID}, nil)
	if err != nil {
		return fmt.Errorf("messaging: invite %q to %q: %w", userID, roomID, err)
	}
	return nil
}

// KickUser removes a user from a room with an optional reason.
func (s *DirectSession) KickUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID, reason string) error {
	err := s.apiCall(ctx, http.MethodPost, roomPath(roomID, "kick"), KickRequest{
		UserID: userID,
		Reason: reason,
	}, nil)
	if err != nil {
		return fmt.Errorf("messaging: kick %q from %q: %w", userID, roomID, err)
	}
	return nil
}

// LeaveRoom leaves a room by ID.
func (s *DirectSession) LeaveRoom(ctx context.Context, roomID ref.RoomID) error {
	if err := s.apiCall(ctx, http.MethodPost, roomPath(roomID, "leave"), struct{}{}, nil); err != nil {
		return fmt.Errorf("messaging: leave room %q: %w", roomID, err)
	}
	return nil
}

// ForgetRoom forgets a previously left room, dropping it from the
// user's room list. Once every member has forgotten a room the server
// may reclaim its history, which is what makes ticket-room dissolution
// final. The user must have already left.
func (s *DirectSession) ForgetRoom(ctx context.Context, roomID ref.RoomID) error {
	if err := s.apiCall(ctx, http.MethodPost, roomPath(roomID, "forget"), struct{}{}, nil); err != nil {
		return fmt.Errorf("messaging: forget room %q: %w", roomID, err)
	}
	return nil
}

// SendMessage sends an m.room.message event and returns its event ID.
func (s *DirectSession) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, "m.room.message", content)
}

// SendEvent sends an event of any type via Matrix's idempotent PUT,
// keyed by a fresh transaction ID. Returns the event ID.
func (s *DirectSession) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	path := roomPath(roomID, "send", eventType.String(), s.nextTransactionID())
	var response SendEventResponse
	if err := s.apiCall(ctx, http.MethodPut, path, content, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send event to %q: %w", roomID, err)
	}
	return response.EventID, nil
}

// SendStateEvent sends a state event, addressed by event type and
// state key. Returns the event ID.
func (s *DirectSession) SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error) {
	path := roomPath(roomID, "state", eventType.String(), stateKey)
	var response SendEventResponse
	if err := s.apiCall(ctx, http.MethodPut, path, content, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send state event to %q: %w", roomID, err)
	}
	return response.EventID, nil
}

// GetStateEvent fetches one state event's content as raw JSON for the
// caller to unmarshal. A missing event comes back as *MatrixError
// with code M_NOT_FOUND.
func (s *DirectSession) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error) {
	path := roomPath(roomID, "state", eventType.String(), stateKey)
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get state event %s/%s in %q: %w", eventType, stateKey, roomID, err)
	}
	return json.RawMessage(body), nil
}

// GetRoomState fetches all current state events from a room, as full
// event objects with type, state_key, and sender.
func (s *DirectSession) GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error) {
	var events []Event
	if err := s.apiCall(ctx, http.MethodGet, roomPath(roomID, "state"), nil, &events); err != nil {
		return nil, fmt.Errorf("messaging: get room state for %q: %w", roomID, err)
	}
	return events, nil
}

// GetRoomMembers returns the members of a room.
func (s *DirectSession) GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error) {
	var response RoomMembersResponse
	if err := s.apiCall(ctx, http.MethodGet, roomPath(roomID, "members"), nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: get room members for %q: %w", roomID, err)
	}

	members := make([]RoomMember, 0, len(response.Chunk))
	for _, event := range response.Chunk {
		// The state key of an m.room.member event is the member's
		// user ID. Skip malformed entries rather than failing the
		// whole list.
		userID, err := ref.ParseUserID(event.StateKey)
		if err != nil {
			continue
		}
		members = append(members, RoomMember{
			UserID:      userID,
			DisplayName: event.Content.DisplayName,
			Membership:  event.Content.Membership,
			AvatarURL:   event.Content.AvatarURL,
		})
	}
	return members, nil
}

// RoomMessages fetches messages from a room with pagination.
func (s *DirectSession) RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	query := make(url.Values)
	query.Set("dir", cmp.Or(options.Direction, "b")) // default newest first
	if options.From != "" {
		query.Set("from", options.From)
	}
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}

	var response RoomMessagesResponse
	if err := s.apiCall(ctx, http.MethodGet, roomPath(roomID, "messages"), nil, &response, query); err != nil {
		return nil, fmt.Errorf("messaging: room messages for %q: %w", roomID, err)
	}
	return &response, nil
}

// Sync performs a sync with the homeserver. Leave options.Since empty
// for the initial sync; set options.Timeout (milliseconds) to
// long-poll.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := make(url.Values)
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	var response SyncResponse
	if err := s.apiCall(ctx, http.MethodGet, "/_matrix/client/v3/sync", nil, &response, query); err != nil {
		return nil, fmt.Errorf("messaging: sync: %w", err)
	}
	return &response, nil
}

// ResolveAlias resolves a room alias (e.g., "#frontdesk-log:example.com")
// to a room ID.
func (s *DirectSession) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias.String())
	var response ResolveAliasResponse
	if err := s.apiCall(ctx, http.MethodGet, path, nil, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: resolve alias %q: %w", alias, err)
	}
	return response.RoomID, nil
}

// UploadMedia uploads content to the homeserver's media repository.
// filename is optional; when set it is stored server-side and becomes
// the default download name. Returns the MXC URI
// (e.g., "mxc://example.com/abc123").
func (s *DirectSession) UploadMedia(ctx context.Context, contentType, filename string, body io.Reader) (string, error) {
	var query url.Values
	if filename != "" {
		query = url.Values{"filename": []string{filename}}
	}
	responseBody, err := s.client.doRequestRaw(ctx, http.MethodPost,
		"/_matrix/media/v3/upload", s.accessToken, contentType, body, query)
	if err != nil {
		return "", fmt.Errorf("messaging: media upload: %w", err)
	}

	var response UploadResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return "", fmt.Errorf("messaging: decoding upload response: %w", err)
	}
	return response.ContentURI, nil
}

// DownloadMedia fetches content from the media repository by MXC URI,
// using the authenticated media endpoint. The returned MediaDownload
// streams the content; the caller must close its Body.
func (s *DirectSession) DownloadMedia(ctx context.Context, mxcURI string) (*MediaDownload, error) {
	server, mediaID, err := splitMXC(mxcURI)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/_matrix/client/v1/media/download/%s/%s",
		url.PathEscape(server),
		url.PathEscape(mediaID),
	)
	response, err := s.client.doRequestStream(ctx, path, s.accessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: media download %q: %w", mxcURI, err)
	}

	return &MediaDownload{
		ContentType: response.Header.Get("Content-Type"),
		Size:        response.ContentLength,
		Body:        response.Body,
	}, nil
}

// splitMXC parses an mxc://server/mediaID URI into its components.
func splitMXC(mxcURI string) (server, mediaID string, err error) {
	rest, ok := strings.CutPrefix(mxcURI, "mxc://")
	if !ok {
		return "", "", fmt.Errorf("messaging: not an MXC URI: %q", mxcURI)
	}
	server, mediaID, ok = strings.Cut(rest, "/")
	if !ok || server == "" || mediaID == "" {
		return "", "", fmt.Errorf("messaging: malformed MXC URI: %q", mxcURI)
	}
	return server, mediaID, nil
}

// GetDisplayName fetches a user's display name from their profile.
// Users without one get "" and no error.
func (s *DirectSession) GetDisplayName(ctx context.Context, userID ref.UserID) (string, error) {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(userID.String()) + "/displayname"
	var response DisplayNameResponse
	if err := s.apiCall(ctx, http.MethodGet, path, nil, &response); err != nil {
		return "", fmt.Errorf("messaging: get display name for %q: %w", userID, err)
	}
	return response.DisplayName, nil
}

// SetDisplayName sets the session user's own display name.
func (s *DirectSession) SetDisplayName(ctx context.Context, displayName string) error {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(s.userID.String()) + "/displayname"
	err := s.apiCall(ctx, http.MethodPut, path, DisplayNameRequest{DisplayName: displayName}, nil)
	if err != nil {
		return fmt.Errorf("messaging: set display name: %w", err)
	}
	return nil
}

// SetPresence publishes the session user's presence state and
// optional status message. Presence must be "online", "unavailable",
// or "offline".
func (s *DirectSession) SetPresence(ctx context.Context, presence, statusMsg string) error {
	path := "/_matrix/client/v3/presence/" + url.PathEscape(s.userID.String()) + "/status"
	err := s.apiCall(ctx, http.MethodPut, path, SetPresenceRequest{
		Presence:  presence,
		StatusMsg: statusMsg,
	}, nil)
	if err != nil {
		return fmt.Errorf("messaging: set presence: %w", err)
	}
	return nil
}

// nextTransactionID issues a transaction ID unique across restarts:
// "frontdesk-<timestamp_ms>-<counter>".
func (s *DirectSession) nextTransactionID() string {
	return fmt.Sprintf("frontdesk-%d-%d", time.Now().UnixMilli(), s.txnCounter.Add(1))
}
