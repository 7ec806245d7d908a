// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive stores closed-ticket transcripts in a local
// content-addressed archive.
//
// Each entry is a single file named by the hex encoding of its entry
// hash: a keyed, domain-separated BLAKE3 digest of the plaintext
// content. The file holds a deterministic CBOR envelope with plaintext
// metadata (name, creation time, content size) and a zstd-compressed
// payload. When the archive is opened with a master key, the payload
// is additionally sealed with XChaCha20-Poly1305 under a per-entry key
// derived via HKDF-SHA-256 with the entry name as the derivation info.
// Metadata stays outside the sealed payload so List and the offline
// CLI work without the key.
//
// Get recomputes the content hash after decompression and fails on any
// mismatch, so a successful Get proves the returned bytes are exactly
// what Put stored.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/frontdesk/lib/clock"
	"github.com/bureau-foundation/frontdesk/lib/codec"
	"github.com/bureau-foundation/frontdesk/lib/secret"
)

// envelopeVersion is the on-disk entry format version. It doubles as
// the first byte of the sealing AAD, so tampering with a sealed
// entry's version causes authentication failure.
const envelopeVersion = 1

// ErrNotFound is returned by Get when no entry exists for the hash.
var ErrNotFound = errors.New("archive entry not found")

// ErrSealed is returned by Get when the entry is sealed and the
// archive was opened without a master key.
var ErrSealed = errors.New("entry is sealed and no archive key is configured")

// Entry describes one archive entry.
type Entry struct {
	// Hash is the keyed BLAKE3 digest of the entry's plaintext
	// content. Entry files are named by its hex encoding.
	Hash Hash

	// Name is the label the entry was stored under, normally the
	// ticket room name.
	Name string

	// CreatedAt is when the entry was stored, in UTC.
	CreatedAt time.Time

	// Size is the plaintext content size in bytes.
	Size int64

	// Sealed reports whether the payload is encrypted.
	Sealed bool
}

// envelope is the on-disk entry format, serialized as deterministic
// CBOR. The metadata fields stay plaintext even when the payload is
// sealed.
type envelope struct {
	Version     int    `cbor:"version"`
	Name        string `cbor:"name"`
	CreatedAt   int64  `cbor:"created_at"` // unix milliseconds
	ContentHash []byte `cbor:"content_hash"`
	ContentSize int64  `cbor:"content_size"`
	Sealed      bool   `cbor:"sealed"`
	Payload     []byte `cbor:"payload"`
}

// entry converts envelope metadata to the public Entry form.
func (env envelope) entry() Entry {
	var hash Hash
	copy(hash[:], env.ContentHash)
	return Entry{
		Hash:      hash,
		Name:      env.Name,
		CreatedAt: time.UnixMilli(env.CreatedAt).UTC(),
		Size:      env.ContentSize,
		Sealed:    env.Sealed,
	}
}

// Archive is a content-addressed store of transcript entries rooted at
// a single directory. Safe for concurrent use: entries are immutable
// once written and Put is atomic (temp file + rename).
type Archive struct {
	dir   string
	key   *secret.Buffer // nil when sealing is disabled
	clock clock.Clock
}

// Open opens the archive rooted at dir, creating the directory if
// needed. When key is non-nil it becomes the archive master key: Put
// seals every new payload and Get unseals sealed entries. The Archive
// takes ownership of the key buffer; Close releases it. A nil key
// opens the archive in plaintext mode, which still reads unsealed
// entries but fails Get on sealed ones.
func Open(dir string, key *secret.Buffer, clk clock.Clock) (*Archive, error) {
	if key != nil && key.Len() != KeySize {
		return nil, fmt.Errorf("archive master key is %d bytes, want %d", key.Len(), KeySize)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &Archive{dir: dir, key: key, clock: clk}, nil
}

// Close releases the master key, if any. The Archive must not be used
// after Close.
func (a *Archive) Close() error {
	if a.key != nil {
		return a.key.Close()
	}
	return nil
}

// Put stores content under the given name and returns its entry hash.
// The archive is content addressed: storing bytes that hash to an
// existing entry is a no-op that returns the existing hash, whatever
// name the entry was first stored under.
func (a *Archive) Put(name string, content []byte) (Hash, error) {
	hash := HashEntry(content)

	path := a.entryPath(hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	} else if !os.IsNotExist(err) {
		return Hash{}, fmt.Errorf("checking for existing entry: %w", err)
	}

	payload := zstdEncoder.EncodeAll(content, nil)

	sealedPayload := false
	if a.key != nil {
		entryKey, err := deriveEntryKey(a.key, name)
		if err != nil {
			return Hash{}, fmt.Errorf("deriving entry key: %w", err)
		}
		payload, err = seal(payload, entryKey, hash)
		entryKey.Close()
		if err != nil {
			return Hash{}, fmt.Errorf("sealing entry payload: %w", err)
		}
		sealedPayload = true
	}

	data, err := codec.Marshal(envelope{
		Version:     envelopeVersion,
		Name:        name,
		CreatedAt:   a.clock.Now().UnixMilli(),
		ContentHash: hash[:],
		ContentSize: int64(len(content)),
		Sealed:      sealedPayload,
		Payload:     payload,
	})
	if err != nil {
		return Hash{}, fmt.Errorf("encoding entry envelope: %w", err)
	}

	if err := a.writeEntry(path, data); err != nil {
		return Hash{}, err
	}
	return hash, nil
}

// Get loads the entry with the given hash and returns its metadata and
// plaintext content. The content hash is recomputed and verified
// before returning.
func (a *Archive) Get(hash Hash) (Entry, []byte, error) {
	data, err := os.ReadFile(a.entryPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, nil, fmt.Errorf("entry %s: %w", hash, ErrNotFound)
		}
		return Entry{}, nil, fmt.Errorf("reading entry %s: %w", hash, err)
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		return Entry{}, nil, fmt.Errorf("entry %s: %w", hash, err)
	}

	var stored Hash
	copy(stored[:], env.ContentHash)
	if stored != hash {
		return Entry{}, nil, fmt.Errorf("entry %s: envelope carries hash %s", hash, stored)
	}

	payload := env.Payload
	if env.Sealed {
		if a.key == nil {
			return Entry{}, nil, fmt.Errorf("entry %s: %w", hash, ErrSealed)
		}
		entryKey, err := deriveEntryKey(a.key, env.Name)
		if err != nil {
			return Entry{}, nil, fmt.Errorf("entry %s: deriving entry key: %w", hash, err)
		}
		payload, err = unseal(payload, entryKey, hash)
		entryKey.Close()
		if err != nil {
			return Entry{}, nil, fmt.Errorf("entry %s: %w", hash, err)
		}
	}

	content, err := decompress(payload, int(env.ContentSize))
	if err != nil {
		return Entry{}, nil, fmt.Errorf("entry %s: %w", hash, err)
	}

	if HashEntry(content) != hash {
		return Entry{}, nil, fmt.Errorf("entry %s: content hash mismatch after decompression", hash)
	}

	return env.entry(), content, nil
}

// List returns metadata for every entry in the archive, ordered by
// creation time with ties broken by name. Payloads are not unsealed or
// decompressed, so List works without the archive key.
func (a *Archive) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}
		// Temp files and strays are not named by a hex hash.
		fileHash, err := ParseHash(dirEntry.Name())
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.dir, dirEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading entry %s: %w", fileHash, err)
		}
		env, err := decodeEnvelope(data)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", fileHash, err)
		}
		entries = append(entries, env.entry())
	}

	slices.SortFunc(entries, func(left, right Entry) int {
		if c := left.CreatedAt.Compare(right.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(left.Name, right.Name)
	})
	return entries, nil
}

// entryPath returns the file path for a hash. Entry files are the bare
// hex hash with no extension.
func (a *Archive) entryPath(hash Hash) string {
	return filepath.Join(a.dir, hash.String())
}

// writeEntry writes envelope bytes atomically: temp file in the
// archive directory, then rename into place.
func (a *Archive) writeEntry(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(a.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp entry file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing entry: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing entry file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming entry into place: %w", err)
	}
	success = true
	return nil
}

// decodeEnvelope decodes and sanity-checks an entry envelope.
func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("decoding entry envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return envelope{}, fmt.Errorf("envelope version %d is not supported (expected %d)",
			env.Version, envelopeVersion)
	}
	if len(env.ContentHash) != HashSize {
		return envelope{}, fmt.Errorf("envelope content hash is %d bytes, want %d",
			len(env.ContentHash), HashSize)
	}
	if env.ContentSize < 0 {
		return envelope{}, fmt.Errorf("envelope content size %d is negative", env.ContentSize)
	}
	return env, nil
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// decompress expands a zstd payload and verifies the result is exactly
// contentSize bytes.
func decompress(payload []byte, contentSize int) ([]byte, error) {
	content, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, contentSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(content) != contentSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(content), contentSize)
	}
	return content, nil
}
