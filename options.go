// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"
)

// DefaultHandshakeTimeout bounds the secure handshake and the path
// announcement on the server side.
const DefaultHandshakeTimeout = 10 * time.Second

// DialOption configures Connect
type DialOption func(*dialOptions)

type dialOptions struct {
	codec    Codec
	identity Identity
	verifier Verifier
	tls      *tls.Config
}

// WithCodec sets a custom codec
func WithCodec(c Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithIdentity sets the static key presented to the server. Without it an
// ephemeral identity is generated per connection.
func WithIdentity(id Identity) DialOption {
	return func(o *dialOptions) { o.identity = id }
}

// WithVerifier checks the server's static key after the handshake
func WithVerifier(v Verifier) DialOption {
	return func(o *dialOptions) { o.verifier = v }
}

// WithTLSConfig sets the TLS config for TLS-based transports (wss)
func WithTLSConfig(c *tls.Config) DialOption {
	return func(o *dialOptions) { o.tls = c }
}

// ServerOption configures servers
type ServerOption func(*serverOptions)

type serverOptions struct {
	codec            Codec
	identity         Identity
	verifier         Verifier
	tls              *tls.Config
	logger           *zap.Logger
	metrics          *Metrics
	handshakeTimeout time.Duration
}

// WithServerCodec sets a custom codec for the server
func WithServerCodec(c Codec) ServerOption {
	return func(o *serverOptions) { o.codec = c }
}

// WithServerIdentity sets the server's static key
func WithServerIdentity(id Identity) ServerOption {
	return func(o *serverOptions) { o.identity = id }
}

// WithServerVerifier checks each client's static key after the handshake
func WithServerVerifier(v Verifier) ServerOption {
	return func(o *serverOptions) { o.verifier = v }
}

// WithServerTLSConfig sets the TLS config for TLS-based transports (wss)
func WithServerTLSConfig(c *tls.Config) ServerOption {
	return func(o *serverOptions) { o.tls = c }
}

// WithLogger sets the server logger
func WithLogger(l *zap.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithMetrics records server activity in m
func WithMetrics(m *Metrics) ServerOption {
	return func(o *serverOptions) { o.metrics = m }
}

// WithHandshakeTimeout bounds the handshake of each accepted connection
func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.handshakeTimeout = d }
}
