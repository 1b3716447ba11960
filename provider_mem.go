// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"net"
	"sync"

	"github.com/samber/oops"
)

// memTransport connects dialers and listeners of the same process by name
// over net.Pipe.
var memTransport = &memProvider{listeners: make(map[string]*memListener)}

type memProvider struct {
	mu        sync.Mutex
	listeners map[string]*memListener
}

func (p *memProvider) Listen(_ context.Context, name string, _ *TransportConfig) (net.Listener, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.listeners[name]; ok {
		return nil, oops.In("mem").With("name", name).Errorf("mem address %q in use", name)
	}
	l := &memListener{
		provider: p,
		name:     name,
		conns:    make(chan net.Conn),
		done:     make(chan struct{}),
	}
	p.listeners[name] = l
	return l, nil
}

func (p *memProvider) Dial(ctx context.Context, name string, _ *TransportConfig) (net.Conn, error) {
	p.mu.Lock()
	l, ok := p.listeners[name]
	p.mu.Unlock()
	if !ok {
		return nil, oops.In("mem").With("name", name).Errorf("mem address %q: connection refused", name)
	}

	client, server := net.Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
	case <-ctx.Done():
		_ = client.Close()
		_ = server.Close()
		return nil, oops.In("mem").Wrapf(ctx.Err(), "dial %q", name)
	}
	_ = client.Close()
	_ = server.Close()
	return nil, oops.In("mem").With("name", name).Errorf("mem address %q: connection refused", name)
}

type memListener struct {
	provider *memProvider
	name     string
	conns    chan net.Conn
	done     chan struct{}
	once     sync.Once
}

func (l *memListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *memListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.provider.mu.Lock()
		delete(l.provider.listeners, l.name)
		l.provider.mu.Unlock()
	})
	return nil
}

func (l *memListener) Addr() net.Addr { return memAddr(l.name) }

type memAddr string

func (memAddr) Network() string  { return TransportMem }
func (a memAddr) String() string { return string(a) }
