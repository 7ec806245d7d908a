// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// EventID is a validated Matrix event ID (e.g., "$abc123xyz").
//
// Event IDs name timeline events. Room version 4+ issues "$base64hash"
// with no server suffix; older versions issue "$something:server".
// Frontdesk treats the content as opaque and checks only the '$'
// prefix and that something follows it.
//
// The zero value is invalid; check with IsZero before use.
type EventID struct {
	id string
}

// ParseEventID checks the '$' prefix and wraps raw.
func ParseEventID(raw string) (EventID, error) {
	if raw == "" {
		return EventID{}, fmt.Errorf("empty event ID")
	}
	if raw[0] != '$' {
		return EventID{}, fmt.Errorf("event ID must start with '$': %q", raw)
	}
	if len(raw) < 2 {
		return EventID{}, fmt.Errorf("event ID has no content after '$': %q", raw)
	}
	return EventID{id: raw}, nil
}

// MustParseEventID panics instead of returning an error. For tests and
// static initialization with known-valid input.
func MustParseEventID(raw string) EventID {
	return mustParse(raw, ParseEventID, "EventID")
}

// String returns the full event ID (e.g., "$abc123xyz").
func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is the zero value.
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero value; anything else is validated.
func (e *EventID) UnmarshalText(data []byte) error {
	return unmarshalText(data, ParseEventID, e)
}

// EventType identifies a Matrix state or timeline event type, such as
// "m.room.message" or "m.room.power_levels".
//
// EventType is a named string, not a struct wrapper: event types are
// opaque identifiers that need no parsing. The type exists for
// compile-time safety, so an event type cannot slip into a state-key
// parameter or vice versa.
type EventType string

// String returns the event type string (e.g., "m.room.message").
func (t EventType) String() string { return string(t) }
