// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import "errors"

var (
	// ErrInvalidInput reports malformed addresses, keys or wire values.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound reports a path that resolves to nothing, locally or on
	// the remote side of a Connect.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by operations on a closed channel or server.
	ErrClosed = errors.New("closed")

	// ErrHandshake reports a failed or rejected secure handshake.
	ErrHandshake = errors.New("handshake failed")

	// ErrCycle reports an attempt to mount a router inside itself.
	ErrCycle = errors.New("router cycle")

	// ErrUnknownTransport reports an address scheme with no registered provider.
	ErrUnknownTransport = errors.New("unknown transport")

	// ErrFrameTooLarge reports a frame above MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
)
