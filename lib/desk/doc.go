// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package desk is the ticket relay and lifecycle engine: the component
// that routes messages between a user's direct room and their
// provisioned ticket room, creates tickets on first contact, and tears
// them down with a transcript when staff close them.
//
// The entry point is HandleEvent, fed one timeline event at a time by
// the service's sync loop. Classify turns each event into exactly one
// tagged variant (user message, room message, order command, close
// request, space join, or ignore); a single dispatch consumes the
// variant. The classifier is pure — it reads the ticket store and the
// direct-room registry but performs no network I/O — so routing
// decisions are unit-testable without a live event source.
//
// Closing is guarded by an in-memory set keyed by room ID with an
// atomic check-and-insert, so two concurrent close requests for the
// same ticket resolve to exactly one transcript and one room deletion;
// the loser observes AlreadyClosing. The guard is process-local and
// lost on restart: a close that crashes between transcript and room
// deletion may leave a room behind for manual cleanup.
//
// Every platform failure is caught at the operation where it occurs
// and converted into a logged warning, a user-visible notice, or a
// CloseResult warning. Nothing a homeserver does terminates the
// process, and every user-initiated action ends in exactly one
// terminal acknowledgment.
package desk
