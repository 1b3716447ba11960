// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"net"
)

type tcpProvider struct{}

func (tcpProvider) Listen(ctx context.Context, target string, _ *TransportConfig) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", target)
}

func (tcpProvider) Dial(ctx context.Context, target string, _ *TransportConfig) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", target)
}
