// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes the build identity stamped into frontdesk
// binaries.
//
// The release pipeline injects values with -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/frontdesk/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Binaries built without stamping report "unknown" placeholders.
package version

import (
	"fmt"
	"runtime"
)

// Stamped at build time via -ldflags. The defaults describe an
// unstamped developer build.
var (
	// Version is the semantic release version, bumped by hand at
	// release time.
	Version = "0.1.0-dev"

	// GitCommit is the abbreviated commit SHA the binary was built
	// from.
	GitCommit = "unknown"

	// GitDirty is "true" when the working tree had uncommitted
	// changes at build time.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Info renders the single-line version string used by --version output
// and the status socket.
func Info() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}

// Full extends Info with the Go toolchain and target platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns the bare semantic version.
func Short() string {
	return Version
}

// Commit returns the commit SHA the binary was built from.
func Commit() string {
	return GitCommit
}

// Print writes the conventional "--version" line for the named binary
// to stdout.
func Print(binary string) {
	fmt.Printf("%s %s\n", binary, Info())
}
