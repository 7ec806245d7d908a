// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identity references
// for the Matrix identifiers Frontdesk handles: user IDs, room IDs,
// room aliases, event IDs, server names, and the service codes used by
// the order catalog.
//
// All constructors validate their inputs and return errors for invalid
// values. Once constructed, a ref is immutable. Identifiers arrive from
// three places (configuration, CLI flags, and Matrix API responses) and
// are parsed into these types at the boundary; interior code never
// passes bare strings.
//
// JSON and YAML marshaling use the canonical Matrix form via
// encoding.TextMarshaler:
//   - UserID:    @localpart:server
//   - RoomAlias: #localpart:server
//   - RoomID:    !opaque:server
//   - EventID:   $opaque
package ref
