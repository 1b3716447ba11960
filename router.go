// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/samber/oops"
	"go.uber.org/zap"
)

// Handler is anything that can be registered on a Router: a Service, a Func
// (registered as a Dynamic service) or a nested Router.
type Handler interface {
	node() node
}

func (s Service) node() node { return node{svc: s} }
func (f Func) node() node    { return node{svc: Dynamic(f)} }
func (r Router) node() node  { return node{sub: r.tbl} }

// Router is a tree of services keyed by path segment.
//
// A Router is a small value: copies share the same table, so a router can
// be handed to any number of listeners and still be extended afterwards.
// Lookups and registrations are safe for concurrent use.
type Router struct {
	tbl *table
	log *zap.Logger
}

// RouteInfo describes one registered service.
type RouteInfo struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

var global = Router{tbl: newTable()}

// mountMu serializes router mounts so two concurrent mounts cannot build a
// cycle between them.
var mountMu sync.Mutex

// NewRouter returns an empty router
func NewRouter() Router {
	return Router{tbl: newTable()}
}

// Global returns the process-wide router. Its table is never released.
func Global() Router {
	return global
}

// Clone returns a router sharing r's table.
func (r Router) Clone() Router {
	return r
}

// WithLogger returns a router sharing r's table that logs service failures
// to log.
func (r Router) WithLogger(log *zap.Logger) Router {
	r.log = log
	return r
}

// Route registers h under key and returns r for chaining. It panics where
// Handle would return an error: on an empty key, a nil or invalid handler,
// or a mount that would make a router contain itself.
func (r Router) Route(key string, h Handler) Router {
	if err := r.Handle(key, h); err != nil {
		panic(err)
	}
	return r
}

// RouteFunc registers fn as a Dynamic service under key.
func (r Router) RouteFunc(key string, fn Func) Router {
	return r.Route(key, fn)
}

// Handle registers h under key. A key of several segments ("a/b") registers
// through nested routers, created as needed. A later registration of the
// same key replaces the earlier one.
func (r Router) Handle(key string, h Handler) error {
	errb := oops.In("router").With("key", key)
	if r.tbl == nil {
		return errb.Wrapf(ErrInvalidInput, "router not initialised, use NewRouter")
	}
	if h == nil {
		return errb.Wrapf(ErrInvalidInput, "nil handler")
	}
	segs := splitPath(key)
	if len(segs) == 0 {
		return errb.Wrapf(ErrInvalidInput, "empty route key %q", key)
	}
	n := h.node()
	if n.sub == nil && !n.svc.valid() {
		return errb.Wrapf(ErrInvalidInput, "handler is neither a service nor a router")
	}

	if n.sub != nil || len(segs) > 1 {
		mountMu.Lock()
		defer mountMu.Unlock()
	}

	// Missing intermediate tables are fresh, so only the deepest existing
	// one can close a loop. Nothing is created until the check passes.
	if n.sub != nil {
		deepest := r.tbl
		for _, seg := range segs[:len(segs)-1] {
			next, ok := deepest.load(seg)
			if !ok || next.sub == nil {
				break
			}
			deepest = next.sub
		}
		if n.sub.reaches(deepest) {
			return errb.Wrapf(ErrCycle, "router would contain itself")
		}
	}

	parent := r.tbl
	for _, seg := range segs[:len(segs)-1] {
		parent = parent.subtable(seg)
	}
	parent.store(segs[len(segs)-1], n)
	return nil
}

// Lookup resolves path without any I/O. The walk stops at the first
// service it meets, so trailing segments past a service are ignored.
func (r Router) Lookup(path string) (Service, bool) {
	if r.tbl == nil {
		return Service{}, false
	}
	tbl := r.tbl
	for seg := range segments(path) {
		n, ok := tbl.load(seg)
		if !ok {
			return Service{}, false
		}
		if n.sub == nil {
			return n.svc, true
		}
		tbl = n.sub
	}
	return Service{}, false
}

// Insert runs the server side of the handshake on c: it receives the
// requested path, replies Found or NotFound and, on Found, hands c to the
// service. The returned error wraps ErrNotFound when nothing matched; the
// caller still owns c in that case.
func (r Router) Insert(ctx context.Context, c Channel) error {
	var path string
	if err := c.Receive(ctx, &path); err != nil {
		return oops.In("router").Wrapf(err, "receive path")
	}
	return r.dispatch(ctx, c, path, true)
}

// ServePath hands c to the service at path without sending a Status. It is
// for carriers that agreed on the path some other way.
func (r Router) ServePath(ctx context.Context, c Channel, path string) error {
	return r.dispatch(ctx, c, path, false)
}

func (r Router) dispatch(ctx context.Context, c Channel, path string, discover bool) error {
	errb := oops.In("router").With("path", path)

	svc, ok := r.Lookup(path)
	if !ok {
		if discover {
			if err := c.Send(ctx, NotFound); err != nil {
				return errb.Wrapf(err, "send status")
			}
		}
		return errb.Wrapf(ErrNotFound, "route not found")
	}

	if discover {
		if err := c.Send(ctx, Found); err != nil {
			return errb.Wrapf(err, "send status")
		}
	}
	svc.call(ctx, c, r.logger())
	return nil
}

// Routes lists every service reachable from r, sorted by path.
func (r Router) Routes() []RouteInfo {
	if r.tbl == nil {
		return nil
	}
	type frame struct {
		prefix string
		tbl    *table
	}
	var out []RouteInfo
	stack := []frame{{tbl: r.tbl}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for key, n := range f.tbl.entries() {
			p := f.prefix + "/" + key
			if n.sub != nil {
				stack = append(stack, frame{prefix: p, tbl: n.sub})
				continue
			}
			out = append(out, RouteInfo{Path: p, Kind: n.svc.Kind()})
		}
	}
	slices.SortFunc(out, func(a, b RouteInfo) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out
}

func (r Router) logger() *zap.Logger {
	if r.log == nil {
		return zap.NewNop()
	}
	return r.log
}
