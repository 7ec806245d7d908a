// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashSize is the size in bytes of an entry hash.
const HashSize = 32

// Hash is a keyed BLAKE3 digest of an entry's plaintext content. The
// hash is the entry's identity: its file name in the archive directory
// and the integrity reference verified on Get.
type Hash [HashSize]byte

// entryDomainKey is the BLAKE3 key for entry content hashing. Domain
// separation keeps archive entry hashes from colliding with any other
// keyed-BLAKE3 use of the same bytes. The byte values are the ASCII
// encoding of the domain name, zero-padded to 32 bytes, so the key is
// inspectable in hex dumps without losing any cryptographic property.
var entryDomainKey = [32]byte{
	'f', 'r', 'o', 'n', 't', 'd', 'e', 's', 'k', '.', 'a', 'r', 'c', 'h', 'i', 'v',
	'e', '.', 'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashEntry computes the entry hash for the given plaintext content.
// Hashes are always computed on uncompressed bytes, so an entry's
// identity is independent of compression and sealing.
func HashEntry(content []byte) Hash {
	// NewKeyed requires exactly 32 bytes, which the fixed-size key
	// guarantees.
	hasher, err := blake3.NewKeyed(entryDomainKey[:])
	if err != nil {
		panic("archive: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(content)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the hex encoding of the hash. This is the canonical
// form used for entry file names, CLI arguments, and log output.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing entry hash: %w", err)
	}
	if len(decoded) != HashSize {
		return hash, fmt.Errorf("entry hash is %d bytes, want %d", len(decoded), HashSize)
	}
	copy(hash[:], decoded)
	return hash, nil
}
