// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "strings"

// UserID is a validated Matrix user ID (e.g., "@alice:example.com").
//
// The type checks structure only: a leading '@' and a ':' between
// localpart and server. Customers, staff, and the service account all
// parse into the same type; who they are is the desk's concern, not
// the identifier's.
//
// The zero value is invalid; check with IsZero before use.
type UserID struct {
	id string
}

// ParseUserID checks that raw has the "@localpart:server" shape and
// wraps it.
func ParseUserID(raw string) (UserID, error) {
	if _, _, err := splitSigil(raw, '@', "Matrix user ID"); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// MustParseUserID panics instead of returning an error. For tests and
// static initialization with known-valid input.
func MustParseUserID(raw string) UserID {
	return mustParse(raw, ParseUserID, "UserID")
}

// String returns the full user ID (e.g., "@alice:example.com").
func (u UserID) String() string { return u.id }

// IsZero reports whether the UserID is the zero value.
func (u UserID) IsZero() bool { return u.id == "" }

// split re-derives the parts of an ID validated at construction.
// Panics on the zero value.
func (u UserID) split() (localpart, server string) {
	if u.id == "" {
		panic("ref: split on zero UserID")
	}
	localpart, server, _ = strings.Cut(u.id[1:], ":")
	return localpart, server
}

// Localpart returns the part between '@' and the first ':'. Panics on
// the zero value.
func (u UserID) Localpart() string {
	localpart, _ := u.split()
	return localpart
}

// Server returns the part after the first ':'. Panics on the zero
// value.
func (u UserID) Server() string {
	_, server := u.split()
	return server
}

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) {
	return []byte(u.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero value; anything else is validated.
func (u *UserID) UnmarshalText(data []byte) error {
	return unmarshalText(data, ParseUserID, u)
}
