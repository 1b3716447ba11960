//go:build unix

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/samber/oops"
)

func init() {
	RegisterTransport(TransportUnix, unixProvider{})
}

type unixProvider struct{}

// Listen removes a socket file left behind by a dead process before
// binding. A socket someone still answers on is left alone.
func (unixProvider) Listen(ctx context.Context, target string, _ *TransportConfig) (net.Listener, error) {
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSocket != 0 {
		probe, err := net.DialTimeout("unix", target, 100*time.Millisecond)
		if err == nil {
			_ = probe.Close()
			return nil, oops.In("unix").With("path", target).Errorf("socket %s is in use", target)
		}
		if err := os.Remove(target); err != nil {
			return nil, oops.In("unix").With("path", target).Wrapf(err, "remove stale socket")
		}
	}
	var lc net.ListenConfig
	return lc.Listen(ctx, "unix", target)
}

func (unixProvider) Dial(ctx context.Context, target string, _ *TransportConfig) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", target)
}
