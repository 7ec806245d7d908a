// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the test helpers shared across frontdesk
// packages.
//
// [RequireReceive] and [RequireClosed] wrap channel reads in a
// wall-clock safety valve. They are the one sanctioned home for
// time.After in the test suite; everything else injects lib/clock and
// advances a fake.
//
// [SocketDir] hands out a /tmp-rooted directory short enough for Unix
// socket paths, and [UniqueID] hands out monotonically increasing
// identifiers for fixtures that must not collide.
//
// Every helper fails the test directly rather than returning an error;
// a broken fixture is never worth recovering from.
package testutil
