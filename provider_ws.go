// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/oops"
)

// wsPath is the HTTP path web-socket tunnels are opened on.
const wsPath = "/route"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	// peers are route clients, not browsers
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsProvider struct {
	tls bool
}

func (p wsProvider) Dial(ctx context.Context, target string, tc *TransportConfig) (net.Conn, error) {
	d := websocket.Dialer{
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadBufferSize:   32 * 1024,
		WriteBufferSize:  32 * 1024,
	}
	u := url.URL{Scheme: "ws", Host: target, Path: wsPath}
	if p.tls {
		u.Scheme = "wss"
		if tc != nil {
			d.TLSClientConfig = tc.TLS
		}
	}

	ws, resp, err := d.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, oops.In("ws").With("url", u.String()).Wrapf(err, "dial")
	}
	return newWSConn(ws), nil
}

func (p wsProvider) Listen(ctx context.Context, target string, tc *TransportConfig) (net.Listener, error) {
	if p.tls && (tc == nil || tc.TLS == nil) {
		return nil, oops.In("ws").Wrapf(ErrInvalidInput, "wss listener needs a TLS config")
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", target)
	if err != nil {
		return nil, err
	}
	if p.tls {
		ln = tls.NewListener(ln, tc.TLS)
	}

	l := &wsListener{
		inner: ln,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.Handle(wsPath, l)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: DefaultHandshakeTimeout,
	}
	go func() {
		_ = l.srv.Serve(ln)
	}()
	return l, nil
}

// wsListener turns upgraded web-socket requests into accepted conns.
type wsListener struct {
	inner net.Listener
	srv   *http.Server
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func (l *wsListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		return
	}
	c := newWSConn(ws)
	select {
	case l.conns <- c:
	case <-l.done:
		_ = c.Close()
	}
}

func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops the HTTP server. Upgraded conns are hijacked and stay open.
func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

func (l *wsListener) Addr() net.Addr { return l.inner.Addr() }

// wsConn is a byte stream over binary web-socket messages.
type wsConn struct {
	ws *websocket.Conn

	readMu  sync.Mutex
	r       io.Reader
	writeMu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.r == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if errors.Is(err, io.EOF) {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
