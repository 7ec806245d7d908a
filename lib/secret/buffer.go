// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds secret material in memory the kernel will neither swap
// nor include in core dumps, and that is wiped when the buffer is
// closed.
//
// The backing region comes from mmap and never touches the Go heap, so
// the garbage collector cannot copy or relocate the secret. A Buffer
// must not be copied. Reading the contents after Close panics.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	size   int
	closed bool
}

// New allocates a zero-filled protected buffer of the given size.
// The caller owns the buffer and must Close it when the secret is no
// longer needed.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}
	region, err := protect(size)
	if err != nil {
		return nil, err
	}
	return &Buffer{region: region, size: size}, nil
}

// protect maps an anonymous region outside the Go heap, locks it
// against swap, and excludes it from core dumps. On any failure the
// partial state is torn down before returning.
func protect(size int) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		// Kernels without MADV_DONTDUMP would leave the secret
		// visible in dumps; refuse rather than run degraded.
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	return region, nil
}

// NewFromBytes moves a secret out of ordinary memory: source is copied
// into a protected buffer and then wiped in place, so the caller's
// slice no longer carries the value.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: empty source")
	}
	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(buffer.region, source)
	Zero(source)
	return buffer, nil
}

// NewFromString copies a string secret into a protected buffer. The
// source string cannot be wiped (strings are immutable), so prefer
// NewFromBytes when the secret arrives as bytes.
func NewFromString(source string) (*Buffer, error) {
	if source == "" {
		return nil, fmt.Errorf("secret: empty string")
	}
	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(buffer.region, source)
	return buffer, nil
}

// contents returns the live region. Callers must hold mu.
func (b *Buffer) contents() []byte {
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return b.region[:b.size]
}

// Bytes returns the secret itself, aliasing the protected region. The
// slice dies with the buffer: never retain it past Close. Panics once
// the buffer is closed.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contents()
}

// String copies the secret into an ordinary heap string for API
// boundaries that demand one. The copy escapes the buffer's
// protections, so reach for Bytes wherever a slice works. Panics once
// the buffer is closed.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.contents())
}

// Len reports the secret's size in bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Close wipes the secret and returns the region to the kernel. Close
// is idempotent; reads after it panic.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	Zero(b.region)
	unlockErr := unix.Munlock(b.region)
	unmapErr := unix.Munmap(b.region)
	b.region = nil

	// Process exit releases the region either way; surface the first
	// teardown error so callers can log it.
	if unlockErr != nil {
		return fmt.Errorf("secret: munlock: %w", unlockErr)
	}
	if unmapErr != nil {
		return fmt.Errorf("secret: munmap: %w", unmapErr)
	}
	return nil
}

// Zero wipes a byte slice that transiently held secret material, such
// as the raw JSON of a session file after parsing.
func Zero(data []byte) {
	clear(data)
}
