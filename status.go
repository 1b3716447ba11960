// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"strconv"

	"github.com/samber/oops"
)

// Status is the reply to a path announcement. It is sent exactly once per
// connection, as a single byte.
type Status uint8

const (
	Found    Status = 0x00
	NotFound Status = 0x01
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// MarshalBinary encodes the status as its one-byte ordinal.
func (s Status) MarshalBinary() ([]byte, error) {
	if s > NotFound {
		return nil, oops.In("status").Wrapf(ErrInvalidInput, "unknown status %d", uint8(s))
	}
	return []byte{byte(s)}, nil
}

// UnmarshalBinary decodes a one-byte ordinal.
func (s *Status) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return oops.In("status").Wrapf(ErrInvalidInput, "status is %d bytes, want 1", len(data))
	}
	if Status(data[0]) > NotFound {
		return oops.In("status").Wrapf(ErrInvalidInput, "unknown status %d", data[0])
	}
	*s = Status(data[0])
	return nil
}
