// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the frontdesk YAML configuration.
//
// Exactly one file configures a deployment: [Load] takes its path from
// the FRONTDESK_CONFIG environment variable, [LoadFile] from a
// --config flag. Nothing is discovered automatically -- no home
// directory probing, no search path -- so the file an operator points
// at is the whole configuration story.
//
// After parsing, ${VAR} and ${VAR:-default} references in path fields
// are resolved; ${HOME} and ${FRONTDESK_STATE} are the useful ones.
// That is the only route from the environment into the configuration.
// Individual values cannot be overridden from outside the file.
//
// Fields that carry Matrix identifiers (the tenant space alias, the
// staff user list, the log room alias) stay strings here and get a
// shape check from [Config.Validate]; the service main parses them
// into lib/ref types once at startup, so a typo in the file surfaces
// as a validation error rather than a mid-operation failure.
//
// Key exports:
//
//   - [Config] -- the top-level struct with Homeserver, Space, Staff,
//     Tickets, Intake, Presence, Archive, and Paths sections
//   - [Default] -- a Config with usable defaults for optional fields
//   - [Load] and [LoadFile] -- the two loading entry points
//
// This package depends on no other frontdesk packages.
package config
