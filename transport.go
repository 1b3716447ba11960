// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"crypto/tls"
	"net"
	"slices"
	"sync"

	"github.com/samber/oops"
)

// Transport schemes
const (
	TransportTCP  = "tcp"  // stream sockets
	TransportUnix = "unix" // local sockets, unix builds only
	TransportWS   = "ws"   // web-socket tunnel
	TransportWSS  = "wss"  // web-socket tunnel over TLS
	TransportMem  = "mem"  // in-process, for tests and embedding
	TransportGRPC = "grpc" // gRPC stream tunnel, requires build tag
)

// TransportConfig carries settings a provider may need.
type TransportConfig struct {
	TLS *tls.Config
}

// Provider moves bytes for one address scheme. The connections it returns
// are raw; Connect and Server add encryption and the route handshake.
type Provider interface {
	Listen(ctx context.Context, target string, tc *TransportConfig) (net.Listener, error)
	Dial(ctx context.Context, target string, tc *TransportConfig) (net.Conn, error)
}

var (
	transportsMu sync.RWMutex
	transports   = map[string]Provider{
		TransportTCP: tcpProvider{},
		TransportWS:  wsProvider{},
		TransportWSS: wsProvider{tls: true},
		TransportMem: memTransport,
	}
)

// RegisterTransport adds or replaces the provider for a scheme.
func RegisterTransport(scheme string, p Provider) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[scheme] = p
}

// AvailableTransports returns the registered schemes, sorted
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	slices.Sort(result)
	return result
}

// HasTransport checks if a transport is available
func HasTransport(scheme string) bool {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	_, ok := transports[scheme]
	return ok
}

func providerFor(scheme string) (Provider, error) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	p, ok := transports[scheme]
	if !ok {
		return nil, oops.In("transport").With("scheme", scheme).Wrapf(ErrUnknownTransport, "%q", scheme)
	}
	return p, nil
}
