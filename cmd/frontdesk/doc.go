// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command frontdesk is the operator CLI for the front desk relay
// service. It provisions the service's Matrix session and talks to a
// running frontdesk-service over its admin socket.
//
// # Subcommands
//
//   - login: authenticate against the homeserver and save the session
//     file the service starts from
//   - status, tickets, close, snapshot: admin-socket actions against a
//     running service
//   - archive: offline inspection of the transcript archive (list,
//     show, verify)
//
// Socket subcommands derive the socket path from the service
// configuration ($FRONTDESK_CONFIG or --config), or take it directly
// via --socket. The socket lives in the service's state directory;
// filesystem access to it is the only credential.
package main
