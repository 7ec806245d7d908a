// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single place frontdesk configures CBOR.
//
// The serialization boundary runs between the outside and the inside
// of the service. JSON faces out: the Matrix client-server API, the
// ticket snapshot file, CLI output. CBOR faces in: the admin socket
// protocol and the transcript archive envelope. Every package that
// speaks CBOR goes through the modes defined here, so the whole tree
// encodes identically.
//
// Encoding is Core Deterministic (RFC 8949 §4.2), meaning sorted map
// keys, smallest integer widths, and no indefinite-length items. A
// given value always produces the same bytes, which keeps archive
// envelopes stable under hashing.
//
// Marshal and Unmarshal handle buffers (archive envelopes); NewEncoder
// and NewDecoder handle streams (socket connections).
//
// # Struct Tag Rules
//
// A type's struct tag records which formats it participates in:
//
//   - `cbor` tag: CBOR-only. Socket request envelopes and archive
//     envelopes use these.
//   - `json` tag: both JSON and CBOR. fxamacker/cbor falls back to
//     `json` tags when `cbor` tags are absent, so one tag carries
//     field naming and omitempty for both formats. Socket response
//     payloads that the CLI re-emits as JSON use these.
//
// Never put both tags on one field; the choice of tag is itself the
// documentation.
package codec
