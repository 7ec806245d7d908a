// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the runtime scaffolding shared by the
// frontdesk service binary and the operator CLI.
//
// The frontdesk service is a standalone Go binary with its own Matrix
// account, its own /sync loop, and a Unix socket API for local
// administration. This package extracts the scaffolding around those
// three concerns:
//
//   - Session handling: read and write session.json in the state
//     directory, create an authenticated Matrix client and session,
//     validate the token at startup.
//   - Sync loop: initial /sync snapshot plus the incremental long-poll
//     loop with exponential backoff, delivering responses to a
//     caller-provided handler. Invite acceptance is a helper the
//     handler calls on each batch.
//   - Socket protocol: a CBOR request-response server on a Unix socket
//     with action dispatch, connection timeouts, and graceful
//     shutdown, and the matching client used by the CLI.
//
// The binary composes these utilities in its own main() rather than
// subclassing a framework. The package provides building blocks, not a
// runtime.
//
// The socket carries no authentication: it lives in the 0700 state
// directory, so filesystem permissions decide who can administer the
// service.
package service
