// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// ServerName is a validated Matrix server name, a hostname with an
// optional port (e.g., "example.com" or "example.com:8448").
//
// Server names identify homeservers and appear after the colon in user
// IDs and room aliases. They enter frontdesk through configuration and
// API responses and are validated once at that boundary.
//
// The zero value is invalid; check with IsZero before use.
type ServerName struct {
	name string
}

// ParseServerName checks raw against the server-name character rules
// and wraps it.
func ParseServerName(raw string) (ServerName, error) {
	if err := validateServer(raw); err != nil {
		return ServerName{}, err
	}
	return ServerName{name: raw}, nil
}

// MustParseServerName panics instead of returning an error. For tests
// and static initialization with known-valid input.
func MustParseServerName(raw string) ServerName {
	return mustParse(raw, ParseServerName, "ServerName")
}

// newServerName wraps a name already validated elsewhere, such as the
// server half of a parsed user ID.
func newServerName(name string) ServerName {
	return ServerName{name: name}
}

// String returns the server name (e.g., "example.com").
func (s ServerName) String() string { return s.name }

// IsZero reports whether the ServerName is the zero value.
func (s ServerName) IsZero() bool { return s.name == "" }

// MarshalText implements encoding.TextMarshaler.
func (s ServerName) MarshalText() ([]byte, error) {
	return []byte(s.name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero value; anything else is validated.
func (s *ServerName) UnmarshalText(data []byte) error {
	return unmarshalText(data, ParseServerName, s)
}
