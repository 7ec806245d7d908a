// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticketstore tracks open tickets as a bijective mapping
// between users and their ticket rooms, with the service label each
// ticket was opened under.
//
// The store is the single authority on "does this user have a ticket"
// and "is this room a ticket". Every mutation keeps both directions of
// the mapping in step inside one critical section and synchronously
// flushes a JSON snapshot (temp file + rename). The snapshot is a
// recovery aid, not the source of truth: a flush failure is logged and
// the in-memory state remains authoritative until the process exits.
//
// At startup [Open] loads the snapshot, dropping any entry whose two
// directions disagree so the loaded store is always bijective.
package ticketstore
