// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
)

// MaxFrameSize bounds a single value on the wire (64MB).
const MaxFrameSize = 64 * 1024 * 1024

// Channel is an established duplex conduit carrying typed values.
//
// Channels returned by Connect and handed to services by a Server are
// encrypted and mutually authenticated. Send and Receive may be used from
// different goroutines at the same time.
type Channel interface {
	// Send encodes v and writes it as one frame.
	Send(ctx context.Context, v any) error

	// Receive reads one frame and decodes it into v.
	Receive(ctx context.Context, v any) error

	// RemoteIdentity returns the peer's static public key, or nil for
	// channels that were not upgraded.
	RemoteIdentity() []byte

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	Close() error
}

// ChannelOption configures a channel created by NewChannel
type ChannelOption func(*conn)

// WithChannelCodec sets the codec used for values
func WithChannelCodec(c Codec) ChannelOption {
	return func(ch *conn) {
		if c != nil {
			ch.codec = c
		}
	}
}

// conn frames values over a net.Conn: [4 len][payload]
type conn struct {
	nc     net.Conn
	codec  Codec
	closed atomic.Bool

	writeMu sync.Mutex
	readMu  sync.Mutex
	header  [4]byte
}

// NewChannel wraps nc. The channel owns nc from then on.
func NewChannel(nc net.Conn, opts ...ChannelOption) Channel {
	c := &conn{
		nc:    nc,
		codec: defaultCodec,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pipe returns two connected in-memory channels. Neither end is encrypted.
func Pipe(opts ...ChannelOption) (Channel, Channel) {
	a, b := net.Pipe()
	return NewChannel(a, opts...), NewChannel(b, opts...)
}

func (c *conn) Send(ctx context.Context, v any) error {
	if c.closed.Load() {
		return oops.In("channel").Wrapf(ErrClosed, "send")
	}

	data, err := c.codec.Encode(v)
	if err != nil {
		return oops.In("channel").Wrapf(err, "encode %T", v)
	}
	if len(data) > MaxFrameSize {
		return oops.In("channel").With("size", len(data)).Wrapf(ErrFrameTooLarge, "send")
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(data)))
	copy(buf[4:], data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	stop := arm(ctx, c.nc.SetWriteDeadline)
	_, err = c.nc.Write(buf)
	stop()
	if err != nil {
		return c.ioError(ctx, "send", err)
	}
	return nil
}

func (c *conn) Receive(ctx context.Context, v any) error {
	if c.closed.Load() {
		return oops.In("channel").Wrapf(ErrClosed, "receive")
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	stop := arm(ctx, c.nc.SetReadDeadline)
	defer stop()

	if _, err := io.ReadFull(c.nc, c.header[:]); err != nil {
		return c.ioError(ctx, "receive", err)
	}
	n := binary.BigEndian.Uint32(c.header[:])
	if n > MaxFrameSize {
		return oops.In("channel").With("size", n).Wrapf(ErrFrameTooLarge, "receive")
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(c.nc, data); err != nil {
		return c.ioError(ctx, "receive", err)
	}

	if err := c.codec.Decode(data, v); err != nil {
		return oops.In("channel").Wrapf(errors.Join(ErrInvalidInput, err), "decode %T", v)
	}
	return nil
}

func (c *conn) RemoteIdentity() []byte {
	if id, ok := c.nc.(interface{ RemoteStatic() []byte }); ok {
		return id.RemoteStatic()
	}
	return nil
}

func (c *conn) LocalAddr() net.Addr  { return c.nc.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

func (c *conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.nc.Close()
}

func (c *conn) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return oops.In("channel").Wrapf(ctxErr, "%s", op)
	}
	if c.closed.Load() {
		return oops.In("channel").Wrapf(ErrClosed, "%s", op)
	}
	return oops.In("channel").Wrapf(err, "%s", op)
}

// aLongTimeAgo is a non-zero time in the past, used to unblock I/O.
var aLongTimeAgo = time.Unix(1, 0)

// arm applies the context deadline to one I/O call and interrupts the call
// if the context is cancelled. The returned func must be called once the
// call is done.
func arm(ctx context.Context, set func(time.Time) error) func() {
	deadline, _ := ctx.Deadline()
	_ = set(deadline)
	if ctx.Done() == nil {
		return func() {}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = set(aLongTimeAgo)
	})
	return func() { stop() }
}
