// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/frontdesk/lib/secret"
)

// KeySize is the size in bytes of the archive master key and of every
// derived per-entry key.
const KeySize = 32

// sealInfoPrefix is the HKDF-SHA-256 info prefix for per-entry key
// derivation. The entry name is appended, so every entry is sealed
// under its own key and a leaked per-entry key exposes one transcript.
// Changing this prefix invalidates all sealed entries.
var sealInfoPrefix = []byte("frontdesk.archive.seal.v1")

// LoadKey reads the archive master key from a key file. The file holds
// the 32-byte key hex-encoded (64 characters, surrounding whitespace
// tolerated). The returned buffer must be closed by the caller,
// normally by handing it to Open.
func LoadKey(path string) (*secret.Buffer, error) {
	text, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive key file: %w", err)
	}
	defer text.Close()

	raw := make([]byte, hex.DecodedLen(text.Len()))
	if _, err := hex.Decode(raw, text.Bytes()); err != nil {
		secret.Zero(raw)
		return nil, fmt.Errorf("archive key file is not hex: %w", err)
	}
	if len(raw) != KeySize {
		secret.Zero(raw)
		return nil, fmt.Errorf("archive key is %d bytes, want %d", len(raw), KeySize)
	}

	// NewFromBytes copies into mmap-backed memory and zeros raw.
	return secret.NewFromBytes(raw)
}

// deriveEntryKey derives the per-entry sealing key from the master key
// and the entry name. The master key is borrowed and NOT closed. The
// returned buffer must be closed by the caller.
func deriveEntryKey(masterKey *secret.Buffer, name string) (*secret.Buffer, error) {
	info := make([]byte, 0, len(sealInfoPrefix)+len(name))
	info = append(info, sealInfoPrefix...)
	info = append(info, name...)

	// The salt is nil: the master key is required to be uniformly
	// random, so HKDF's extract phase with a zero salt is appropriate
	// per RFC 5869.
	reader := hkdf.New(sha256.New, masterKey.Bytes(), nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return secret.NewFromBytes(derived)
}

// seal encrypts a compressed payload with XChaCha20-Poly1305 under a
// per-entry key. The sealed payload layout is:
//
//	[Nonce: 24 bytes (random)] [Ciphertext+Tag: N+16 bytes]
//
// The envelope version byte and the entry hash are the additional
// authenticated data, binding the ciphertext to its entry so a sealed
// payload cannot be swapped between envelopes.
func seal(payload []byte, entryKey *secret.Buffer, hash Hash) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(entryKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	// Seal appends the ciphertext and tag after the nonce.
	output := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(payload)+aead.Overhead())
	copy(output, nonce[:])
	return aead.Seal(output, nonce[:], payload, sealAAD(hash)), nil
}

// unseal decrypts a sealed payload produced by seal.
func unseal(sealed []byte, entryKey *secret.Buffer, hash Hash) ([]byte, error) {
	minimum := chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(sealed) < minimum {
		return nil, fmt.Errorf("sealed payload is %d bytes, minimum is %d (nonce + tag)",
			len(sealed), minimum)
	}

	aead, err := chacha20poly1305.NewX(entryKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ciphertext := sealed[chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, sealAAD(hash))
	if err != nil {
		return nil, fmt.Errorf("unsealing failed (wrong key or tampered payload): %w", err)
	}
	return plaintext, nil
}

// sealAAD builds the additional authenticated data for seal and
// unseal: the envelope version byte followed by the entry hash.
func sealAAD(hash Hash) []byte {
	aad := make([]byte, 1+HashSize)
	aad[0] = envelopeVersion
	copy(aad[1:], hash[:])
	return aad
}
