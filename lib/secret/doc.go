// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps sensitive values out of ordinary process
// memory: Matrix access tokens, login passwords, and the archive
// master key all live in a [Buffer] for their lifetime.
//
// A Buffer is backed by an anonymous mmap region rather than the Go
// heap. The region is mlocked so it cannot reach swap, marked
// MADV_DONTDUMP so it never appears in a core dump, and invisible to
// the garbage collector so nothing copies or relocates it. Close wipes
// the region before handing it back to the kernel.
//
// [New] allocates an empty buffer; [NewFromBytes] moves a secret in
// and wipes the source; [NewFromString] copies from a string (which
// cannot be wiped); [ReadFromPath] loads a secret file, with "-"
// reading a line from stdin.
//
// Read the value with [Buffer.Bytes], which aliases the protected
// region, or [Buffer.String], which copies onto the heap for API
// boundaries that insist on a string. Either panics after Close.
//
// [Zero] wipes transient heap slices that briefly held secret
// material, such as raw session-file JSON after parsing.
package secret
