// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"encoding"
	"encoding/json"
)

// Codec encodes/decodes the values carried by a Channel
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONCodec is a JSON-based codec
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// BinaryCodec passes bytes and strings through unchanged and uses the
// binary form of types that have one. Everything else is JSON.
type BinaryCodec struct{}

func (BinaryCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	case string:
		return []byte(b), nil
	case *string:
		return []byte(*b), nil
	case encoding.BinaryMarshaler:
		return b.MarshalBinary()
	}
	return json.Marshal(v)
}

func (BinaryCodec) Decode(data []byte, v any) error {
	switch b := v.(type) {
	case *[]byte:
		*b = append((*b)[:0], data...)
		return nil
	case *string:
		*b = string(data)
		return nil
	case encoding.BinaryUnmarshaler:
		return b.UnmarshalBinary(data)
	}
	return json.Unmarshal(data, v)
}

// Binary is the default codec
var Binary Codec = BinaryCodec{}

// defaultCodec is used when no codec is specified
var defaultCodec = Binary
