// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API for frontdesk's
// relay, provisioning, and lifecycle needs.
//
// The package provides two core types. [Client] is an unauthenticated
// Matrix client that handles password login and token-based session
// restoration, returning authenticated [DirectSession] values. Client
// holds the homeserver URL and HTTP transport, shared across all
// sessions derived from it.
//
// [DirectSession] wraps a Client with an access token for authenticated
// operations: room management (create, join, leave, forget, invite,
// kick), messaging (send events, room messages with pagination), state
// events (get/set individual events, full room state), incremental sync
// with long-polling, room alias resolution, media upload and download,
// presence, and identity verification (WhoAmI). The [Session] interface
// covers the subset that service code consumes, so tests can substitute
// mocks.
//
// The access token lives in mmap-backed secret.Buffer memory, locked
// against swap and excluded from core dumps; callers must call
// DirectSession.Close to release it.
//
// All API errors are returned as [*MatrixError] with the standard Matrix
// error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status code.
// [IsMatrixError] tests for a specific error code. Request URLs are built
// by string concatenation rather than url.URL to avoid double-encoding of
// path segments that contain URL-encoded characters (such as room IDs
// with colons).
//
// [RoomWatcher] anchors a position in the /sync stream for one room and
// blocks until a matching event arrives, which is how intake flows wait
// for user replies. [RoomPurger] abstracts server-specific room deletion
// (Synapse admin API or Continuwuity admin commands) for the ticket
// close pipeline.
package messaging
