// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// RoomID is a validated Matrix room ID (e.g., "!abc123:example.com").
//
// Room IDs are opaque, server-assigned, and never constructed by
// frontdesk: they arrive from alias resolution, room creation, and
// /sync responses, and get parsed into this type at the boundary.
// Ticket rooms are keyed by RoomID in the store and its snapshot.
//
// The zero value is invalid; check with IsZero before use.
type RoomID struct {
	id string
}

// ParseRoomID checks that raw has the "!opaque:server" shape and
// wraps it.
func ParseRoomID(raw string) (RoomID, error) {
	if raw == "" {
		return RoomID{}, fmt.Errorf("empty room ID")
	}
	if raw[0] != '!' {
		return RoomID{}, fmt.Errorf("room ID must start with '!': %q", raw)
	}
	opaque, server, found := strings.Cut(raw[1:], ":")
	switch {
	case !found:
		return RoomID{}, fmt.Errorf("room ID missing ':server' suffix: %q", raw)
	case opaque == "":
		return RoomID{}, fmt.Errorf("room ID has empty local part: %q", raw)
	case server == "":
		return RoomID{}, fmt.Errorf("room ID has empty server name: %q", raw)
	}
	return RoomID{id: raw}, nil
}

// MustParseRoomID panics instead of returning an error. For tests and
// static initialization with known-valid input.
func MustParseRoomID(raw string) RoomID {
	return mustParse(raw, ParseRoomID, "RoomID")
}

// String returns the full room ID (e.g., "!abc123:example.com").
func (r RoomID) String() string { return r.id }

// IsZero reports whether the RoomID is the zero value.
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (r RoomID) MarshalText() ([]byte, error) {
	return []byte(r.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero value; anything else is validated.
func (r *RoomID) UnmarshalText(data []byte) error {
	return unmarshalText(data, ParseRoomID, r)
}
