// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"go.uber.org/zap"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server accepts connections on one listener and dispatches each of them
// through a Router.
type Server struct {
	listener net.Listener
	scheme   string
	router   Router
	opts     serverOptions
	log      *zap.Logger

	// connections still in their handshake
	conns   sync.Map
	closed  atomic.Bool
	serving atomic.Bool

	done    chan struct{}
	doneErr error
}

func newServer(ln net.Listener, scheme string, r Router, o serverOptions) *Server {
	log := o.logger.Named("route").With(
		zap.String("scheme", scheme),
		zap.Stringer("listen", ln.Addr()),
	)
	return &Server{
		listener: ln,
		scheme:   scheme,
		router:   r.WithLogger(log),
		opts:     o,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Serve accepts connections until the server is closed or ctx is done. A
// failure on one connection never stops the loop. Serve returns nil after
// Close.
func (s *Server) Serve(ctx context.Context) error {
	if !s.serving.CompareAndSwap(false, true) {
		return oops.In("server").Errorf("already serving")
	}
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	err := s.acceptLoop(ctx)
	s.doneErr = err
	close(s.done)
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	s.log.Info("serving")
	var delay time.Duration
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.opts.metrics.acceptError()
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			s.log.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		delay = 0
		go s.handleConn(ctx, nc)
	}
}

func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	s.conns.Store(nc, struct{}{})
	handed := false
	defer func() {
		s.conns.Delete(nc)
		if !handed {
			_ = nc.Close()
		}
	}()
	log := s.log.With(zap.Stringer("remote", nc.RemoteAddr()))

	hctx, cancel := context.WithTimeout(ctx, s.opts.handshakeTimeout)
	defer cancel()

	s.opts.metrics.handshakeStarted()
	start := time.Now()
	sc, err := secure(hctx, nc, s.opts.identity, false, s.opts.verifier)
	s.opts.metrics.handshakeDone(time.Since(start))
	if err != nil {
		s.opts.metrics.dispatched(resultError)
		log.Warn("secure handshake failed", zap.Error(err))
		return
	}

	c := NewChannel(sc, WithChannelCodec(s.opts.codec))
	var path string
	if err := c.Receive(hctx, &path); err != nil {
		s.opts.metrics.dispatched(resultError)
		log.Warn("no path received", zap.Error(err))
		return
	}
	log = log.With(zap.String("path", path))

	// From here the channel may belong to a service.
	s.conns.Delete(nc)
	err = s.router.dispatch(hctx, c, path, true)
	switch {
	case err == nil:
		handed = true
		s.opts.metrics.dispatched(resultFound)
		log.Debug("dispatched")
	case errors.Is(err, ErrNotFound):
		s.opts.metrics.dispatched(resultNotFound)
		log.Debug("route not found")
	default:
		s.opts.metrics.dispatched(resultError)
		log.Warn("dispatch failed", zap.Error(err))
	}
}

// Wait blocks until Serve returns and returns its error.
func (s *Server) Wait() error {
	<-s.done
	return s.doneErr
}

// Close stops accepting and drops connections still in their handshake.
// Channels already handed to services are left to them.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.listener.Close()
	s.conns.Range(func(key, _ any) bool {
		_ = key.(net.Conn).Close()
		return true
	})
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return oops.In("server").Wrapf(err, "close listener")
	}
	return nil
}

// Addr returns the bound address, with the port filled in when the server
// was asked for port 0.
func (s *Server) Addr() Addr {
	return Addr{Scheme: s.scheme, Target: s.listener.Addr().String()}
}

// Identity returns the server's static key pair.
func (s *Server) Identity() Identity {
	return s.opts.identity
}

// Router returns the router the server dispatches to.
func (s *Server) Router() Router {
	return s.router
}
