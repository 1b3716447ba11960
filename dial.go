// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"

	"github.com/samber/oops"
	"go.uber.org/zap"
)

// Connect dials addr, secures the connection and asks for the service id.
// It returns the channel once the remote router answers Found; NotFound
// yields an error wrapping ErrNotFound.
func Connect(ctx context.Context, addr Addr, id string, opts ...DialOption) (Channel, error) {
	o := &dialOptions{codec: defaultCodec}
	for _, opt := range opts {
		opt(o)
	}
	errb := oops.In("connect").With("addr", addr.String(), "id", id)

	p, err := providerFor(addr.Scheme)
	if err != nil {
		return nil, err
	}

	ident := o.identity
	if ident.IsZero() {
		if ident, err = GenerateIdentity(); err != nil {
			return nil, err
		}
	}

	nc, err := p.Dial(ctx, addr.Target, &TransportConfig{TLS: o.tls})
	if err != nil {
		return nil, errb.Wrapf(err, "dial")
	}
	sc, err := secure(ctx, nc, ident, true, o.verifier)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}

	c := NewChannel(sc, WithChannelCodec(o.codec))
	if err := c.Send(ctx, id); err != nil {
		_ = c.Close()
		return nil, errb.Wrapf(err, "send id")
	}
	var st Status
	if err := c.Receive(ctx, &st); err != nil {
		_ = c.Close()
		return nil, errb.Wrapf(err, "receive status")
	}
	if st != Found {
		_ = c.Close()
		return nil, errb.Wrapf(ErrNotFound, "service id `%s` not found", id)
	}
	return c, nil
}

// Listen binds addr and returns a server for r. Call Serve to accept.
func Listen(ctx context.Context, addr Addr, r Router, opts ...ServerOption) (*Server, error) {
	o := serverOptions{
		codec:            defaultCodec,
		logger:           zap.NewNop(),
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	errb := oops.In("listen").With("addr", addr.String())

	p, err := providerFor(addr.Scheme)
	if err != nil {
		return nil, err
	}
	if o.identity.IsZero() {
		if o.identity, err = GenerateIdentity(); err != nil {
			return nil, err
		}
	}

	ln, err := p.Listen(ctx, addr.Target, &TransportConfig{TLS: o.tls})
	if err != nil {
		return nil, errb.Wrapf(err, "listen")
	}
	return newServer(ln, addr.Scheme, r, o), nil
}

// Bind is Listen followed by Serve on a new goroutine. Use Wait to collect
// the result of Serve.
func Bind(ctx context.Context, addr Addr, r Router, opts ...ServerOption) (*Server, error) {
	s, err := Listen(ctx, addr, r, opts...)
	if err != nil {
		return nil, err
	}
	go func() {
		_ = s.Serve(ctx)
	}()
	return s, nil
}
