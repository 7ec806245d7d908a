// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "strings"

// RoomAlias is a validated Matrix room alias (e.g.,
// "#support:example.com").
//
// Aliases are the human-readable names that resolve to opaque RoomIDs.
// Frontdesk is configured with aliases for its long-lived rooms (the
// tenant space and the staff log room); ticket rooms are ephemeral and
// referenced by RoomID only.
//
// The zero value is invalid; check with IsZero before use.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias checks that raw has the "#localpart:server" shape and
// wraps it.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	if _, _, err := splitSigil(raw, '#', "room alias"); err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

// MustParseRoomAlias panics instead of returning an error. For tests
// and static initialization with known-valid input.
func MustParseRoomAlias(raw string) RoomAlias {
	return mustParse(raw, ParseRoomAlias, "RoomAlias")
}

// String returns the full alias (e.g., "#support:example.com").
func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether the RoomAlias is the zero value.
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// Localpart returns the part between '#' and the first ':', or ""
// for the zero value.
func (a RoomAlias) Localpart() string {
	if a.alias == "" {
		return ""
	}
	localpart, _, _ := strings.Cut(a.alias[1:], ":")
	return localpart
}

// Server returns the part after the first ':', or "" for the zero
// value.
func (a RoomAlias) Server() string {
	if a.alias == "" {
		return ""
	}
	_, server, _ := strings.Cut(a.alias[1:], ":")
	return server
}

// MarshalText implements encoding.TextMarshaler.
func (a RoomAlias) MarshalText() ([]byte, error) {
	return []byte(a.alias), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero value; anything else is validated.
func (a *RoomAlias) UnmarshalText(data []byte) error {
	return unmarshalText(data, ParseRoomAlias, a)
}
