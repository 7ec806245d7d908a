// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode applies Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer widths, no indefinite-length items. The
// same logical value always encodes to the same bytes.
var encMode = mustEncMode()

// decMode accepts standard CBOR and ignores unknown fields, so old
// clients keep working against newer services.
var decMode = mustDecMode()

func mustEncMode() cbor.EncMode {
	options := cbor.CoreDetEncOptions()
	// The ref types (UserID, RoomID, ServiceCode) carry unexported
	// fields and marshal through encoding.TextMarshaler. Without this
	// setting they would encode as empty CBOR maps.
	options.TextMarshaler = cbor.TextMarshalerTextString
	mode, err := options.EncMode()
	if err != nil {
		panic("codec: CBOR encoder configuration: " + err.Error())
	}
	return mode
}

func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		// With an any-typed target the decoder must pick a concrete
		// map type, and the CBOR default is map[any]any. Frontdesk
		// only ever uses string keys, and map[string]any is what
		// encoding/json and the rest of the code expect. Struct
		// decoding is unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Counterpart of TextMarshalerTextString above, so the ref
		// types round-trip through UnmarshalText.
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder configuration: " + err.Error())
	}
	return mode
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder and Decoder alias the underlying stream types so consumers
// import only this package, never fxamacker/cbor directly.
type (
	Encoder = cbor.Encoder
	Decoder = cbor.Decoder
)

// RawMessage is a raw encoded CBOR value, usable to defer decoding or
// to splice pre-encoded bytes into a larger message.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing to w with the
// deterministic configuration.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose renders data in CBOR diagnostic notation (RFC 8949 §8),
// the human-readable form the CLI prints for wire-level inspection.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
