// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// maxServiceCodeLength bounds catalog service codes. Codes appear in
// room names and snapshot values, so they stay short and predictable.
const maxServiceCodeLength = 32

// ServiceCode is a validated catalog service code (e.g., "standard",
// "priority-delivery"). Codes name the orderable services defined in
// the catalog file and label tickets opened through the order flow.
//
// A code is 1 to 32 characters of lowercase letters, digits, and
// hyphens; it starts with a letter and does not end with a hyphen.
//
// The zero value means "no service label" (a plain support ticket);
// check with IsZero.
type ServiceCode struct {
	code string
}

// ParseServiceCode checks raw against the code grammar and wraps it.
func ParseServiceCode(raw string) (ServiceCode, error) {
	if raw == "" {
		return ServiceCode{}, fmt.Errorf("empty service code")
	}
	if len(raw) > maxServiceCodeLength {
		return ServiceCode{}, fmt.Errorf("service code %q is %d characters, maximum is %d", raw, len(raw), maxServiceCodeLength)
	}
	if raw[0] < 'a' || raw[0] > 'z' {
		return ServiceCode{}, fmt.Errorf("service code %q must start with a lowercase letter", raw)
	}
	if raw[len(raw)-1] == '-' {
		return ServiceCode{}, fmt.Errorf("service code %q must not end with '-'", raw)
	}
	for i := range len(raw) {
		c := raw[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return ServiceCode{}, fmt.Errorf("service code %q: invalid character %q at position %d (allowed: a-z, 0-9, -)", raw, c, i)
		}
	}
	return ServiceCode{code: raw}, nil
}

// MustParseServiceCode panics instead of returning an error. For tests
// and static initialization with known-valid input.
func MustParseServiceCode(raw string) ServiceCode {
	return mustParse(raw, ParseServiceCode, "ServiceCode")
}

// String returns the code string (e.g., "standard").
func (c ServiceCode) String() string { return c.code }

// IsZero reports whether the ServiceCode is the zero value (no label).
func (c ServiceCode) IsZero() bool { return c.code == "" }

// MarshalText implements encoding.TextMarshaler.
func (c ServiceCode) MarshalText() ([]byte, error) {
	return []byte(c.code), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero value; anything else is validated.
func (c *ServiceCode) UnmarshalText(data []byte) error {
	return unmarshalText(data, ParseServiceCode, c)
}
