// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Frontdesk-service is the support desk relay: it turns direct Matrix
// conversations into staffed ticket rooms and relays messages between
// the two until a ticket is closed.
//
// Users message the service account directly (or join the tenant
// space and get greeted). Their first direct message opens a ticket
// room under the space, staff are invited, and from then on the
// service copies user messages into the ticket room and staff replies
// back into the direct conversation, each relayed message attributed
// to its author. Staff close tickets with !close (or the pinned 🔒
// control); closing generates a transcript, delivers it to the user,
// archives it, and deletes the room.
//
// # Startup
//
// The service loads its configuration from --config (or
// FRONTDESK_CONFIG), reads the Matrix session written by "frontdesk
// login" from the state directory, ensures the tenant space and staff
// log room exist, loads the ticket snapshot, and performs an initial
// /sync to rebuild its direct-room map and the space power cache. It
// then serves the admin socket and enters the incremental /sync loop.
//
// # Socket API
//
// The frontdesk CLI connects to the Unix socket in the state
// directory and sends CBOR requests, one per connection. Actions:
// status, tickets, close, snapshot.
package main
