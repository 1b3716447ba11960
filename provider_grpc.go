//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/peer"
)

func init() {
	// Register gRPC transport when build tag is enabled
	RegisterTransport(TransportGRPC, grpcProvider{})
}

const (
	tunnelService = "route.Tunnel"
	tunnelMethod  = "/route.Tunnel/Open"

	// gRPC rejects messages above 4MB by default
	maxGRPCChunk = 1 << 20
)

var tunnelStream = grpc.StreamDesc{
	StreamName:    "Open",
	ServerStreams: true,
	ClientStreams: true,
}

// rawCodec carries *[]byte messages untouched.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, oops.In("grpc").Errorf("raw codec cannot marshal %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return oops.In("grpc").Errorf("raw codec cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "route-raw" }

type grpcProvider struct{}

func (grpcProvider) Dial(ctx context.Context, target string, tc *TransportConfig) (net.Conn, error) {
	creds := insecure.NewCredentials()
	if tc != nil && tc.TLS != nil {
		creds = credentials.NewTLS(tc.TLS)
	}
	cc, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		return nil, oops.In("grpc").With("target", target).Wrapf(err, "grpc dial")
	}

	// the stream outlives ctx, which only bounds its creation
	sctx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	stream, err := cc.NewStream(sctx, &tunnelStream, tunnelMethod)
	if !stop() {
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		_ = cc.Close()
		return nil, oops.In("grpc").With("target", target).Wrapf(err, "open stream")
	}

	c := newStreamConn(stream, grpcAddr("local"), grpcAddr(target))
	c.onClose = func() {
		_ = stream.CloseSend()
		cancel()
		_ = cc.Close()
	}
	return c, nil
}

func (grpcProvider) Listen(ctx context.Context, target string, tc *TransportConfig) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", target)
	if err != nil {
		return nil, err
	}

	opts := []grpc.ServerOption{grpc.ForceServerCodec(rawCodec{})}
	if tc != nil && tc.TLS != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tc.TLS)))
	}
	l := &grpcListener{
		inner: ln,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	l.srv = grpc.NewServer(opts...)
	l.srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: tunnelService,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    tunnelStream.StreamName,
			Handler:       l.open,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, l)
	go func() {
		_ = l.srv.Serve(ln)
	}()
	return l, nil
}

// grpcListener hands each tunnel stream to Accept as a conn. The stream
// handler stays blocked until that conn is closed.
type grpcListener struct {
	inner net.Listener
	srv   *grpc.Server
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func (l *grpcListener) open(_ any, stream grpc.ServerStream) error {
	ctx := stream.Context()
	var remote net.Addr = grpcAddr("unknown")
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr
	}
	c := newStreamConn(stream, l.inner.Addr(), remote)

	select {
	case l.conns <- c:
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-c.closed:
	case <-ctx.Done():
	}
	return nil
}

func (l *grpcListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops the gRPC server, which also ends every open tunnel.
func (l *grpcListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.srv.Stop()
	})
	return nil
}

func (l *grpcListener) Addr() net.Addr { return l.inner.Addr() }

type msgStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// streamConn is a byte stream over gRPC messages. A deadline that expires
// closes the conn, since a blocked RecvMsg cannot be interrupted otherwise.
type streamConn struct {
	stream        msgStream
	local, remote net.Addr
	onClose       func()

	readMu  sync.Mutex
	buf     []byte
	writeMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once

	timerMu    sync.Mutex
	readTimer  *time.Timer
	writeTimer *time.Timer
}

func newStreamConn(s msgStream, local, remote net.Addr) *streamConn {
	return &streamConn{
		stream: s,
		local:  local,
		remote: remote,
		closed: make(chan struct{}),
	}
}

func (c *streamConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.buf) == 0 {
		var msg []byte
		if err := c.stream.RecvMsg(&msg); err != nil {
			if c.isClosed() {
				return 0, net.ErrClosed
			}
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, err
		}
		c.buf = msg
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *streamConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(p) {
		if c.isClosed() {
			return written, net.ErrClosed
		}
		end := min(written+maxGRPCChunk, len(p))
		chunk := append([]byte(nil), p[written:end]...)
		if err := c.stream.SendMsg(&chunk); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.timerMu.Lock()
		for _, t := range []*time.Timer{c.readTimer, c.writeTimer} {
			if t != nil {
				t.Stop()
			}
		}
		c.timerMu.Unlock()
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}

func (c *streamConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *streamConn) LocalAddr() net.Addr  { return c.local }
func (c *streamConn) RemoteAddr() net.Addr { return c.remote }

func (c *streamConn) SetDeadline(t time.Time) error {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.readTimer = c.resetTimer(c.readTimer, t)
	c.writeTimer = c.resetTimer(c.writeTimer, t)
	return nil
}

func (c *streamConn) SetReadDeadline(t time.Time) error {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.readTimer = c.resetTimer(c.readTimer, t)
	return nil
}

func (c *streamConn) SetWriteDeadline(t time.Time) error {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.writeTimer = c.resetTimer(c.writeTimer, t)
	return nil
}

// resetTimer must be called with timerMu held.
func (c *streamConn) resetTimer(old *time.Timer, t time.Time) *time.Timer {
	if old != nil {
		old.Stop()
	}
	if t.IsZero() {
		return nil
	}
	return time.AfterFunc(time.Until(t), func() { _ = c.Close() })
}

type grpcAddr string

func (grpcAddr) Network() string  { return TransportGRPC }
func (a grpcAddr) String() string { return string(a) }
