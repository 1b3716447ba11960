// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// closer is a Static service that marks itself run and closes the channel.
func closer(ran *atomic.Bool) Service {
	return Static(func(c Channel) {
		ran.Store(true)
		_ = c.Close()
	})
}

// insert runs the client half of the path exchange against r.Insert.
func insert(t *testing.T, r Router, path string) (Status, error) {
	t.Helper()
	ctx := testContext(t)
	client, server := Pipe()
	t.Cleanup(func() { _ = client.Close() })

	errc := make(chan error, 1)
	go func() {
		err := r.Insert(ctx, server)
		if err != nil {
			_ = server.Close()
		}
		errc <- err
	}()

	require.NoError(t, client.Send(ctx, path))
	var st Status
	require.NoError(t, client.Receive(ctx, &st))
	return st, <-errc
}

// dispatchPath is insert without require, for use off the test goroutine.
func dispatchPath(ctx context.Context, r Router, path string) (Status, error) {
	client, server := Pipe()
	defer client.Close()

	errc := make(chan error, 1)
	go func() {
		err := r.Insert(ctx, server)
		if err != nil {
			_ = server.Close()
		}
		errc <- err
	}()

	if err := client.Send(ctx, path); err != nil {
		return 0, err
	}
	var st Status
	if err := client.Receive(ctx, &st); err != nil {
		return 0, err
	}
	return st, <-errc
}

func TestInsertSingleSegment(t *testing.T) {
	require := require.New(t)

	var ran atomic.Bool
	r := NewRouter().Route("a", closer(&ran))

	st, err := insert(t, r, "/a")
	require.NoError(err)
	require.Equal(Found, st)
	require.True(ran.Load())

	ran.Store(false)
	st, err = insert(t, r, "a")
	require.NoError(err)
	require.Equal(Found, st)
	require.True(ran.Load())
}

func TestInsertNotFound(t *testing.T) {
	require := require.New(t)

	var ran atomic.Bool
	r := NewRouter().Route("a", closer(&ran))

	for _, path := range []string{"/b", "/b/x/y", "/", "", "//"} {
		st, err := insert(t, r, path)
		require.ErrorIs(err, ErrNotFound, path)
		require.Equal(NotFound, st, path)
	}
	require.False(ran.Load())
}

func TestInsertNested(t *testing.T) {
	require := require.New(t)

	var ran atomic.Bool
	r := NewRouter().Route("a", NewRouter().Route("b", closer(&ran)))

	st, err := insert(t, r, "/a/b")
	require.NoError(err)
	require.Equal(Found, st)
	require.True(ran.Load())

	// a router is not a service
	st, err = insert(t, r, "/a")
	require.ErrorIs(err, ErrNotFound)
	require.Equal(NotFound, st)

	st, err = insert(t, r, "/a/c")
	require.ErrorIs(err, ErrNotFound)
	require.Equal(NotFound, st)
}

func TestInsertGreedy(t *testing.T) {
	require := require.New(t)

	var ran atomic.Bool
	r := NewRouter().Route("a", closer(&ran))

	st, err := insert(t, r, "/a/extra/segments")
	require.NoError(err)
	require.Equal(Found, st)
	require.True(ran.Load())
}

func TestHandleMultiSegmentKey(t *testing.T) {
	require := require.New(t)

	var ran atomic.Bool
	r := NewRouter()
	require.NoError(r.Handle("x/y/z", closer(&ran)))

	svc, ok := r.Lookup("/x/y/z")
	require.True(ok)
	require.Equal(KindStatic, svc.Kind())

	_, ok = r.Lookup("/x/y")
	require.False(ok)

	// a second key under the same prefix reuses the nested router
	require.NoError(r.Handle("x/y/w", closer(&ran)))
	_, ok = r.Lookup("/x/y/z")
	require.True(ok)
	_, ok = r.Lookup("/x/y/w")
	require.True(ok)
}

func TestHandleOverwrite(t *testing.T) {
	require := require.New(t)

	var first, second atomic.Bool
	r := NewRouter().Route("a", closer(&first)).Route("a", closer(&second))

	_, err := insert(t, r, "/a")
	require.NoError(err)
	require.False(first.Load())
	require.True(second.Load())

	// a router replaces a service and the other way around
	r.Route("a", NewRouter().Route("b", closer(&first)))
	_, ok := r.Lookup("/a/b")
	require.True(ok)
	r.Route("a", closer(&second))
	svc, ok := r.Lookup("/a/b")
	require.True(ok)
	require.Equal(KindStatic, svc.Kind())
}

func TestHandleInvalid(t *testing.T) {
	r := NewRouter()
	tests := []struct {
		name string
		key  string
		h    Handler
	}{
		{"empty key", "", Static(func(Channel) {})},
		{"root key", "/", Static(func(Channel) {})},
		{"nil handler", "a", nil},
		{"zero service", "a", Service{}},
		{"nil static", "a", Static(nil)},
		{"nil dynamic", "a", Dynamic(nil)},
		{"uninitialised router", "a", Router{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, r.Handle(tt.key, tt.h), ErrInvalidInput)
		})
	}

	require.ErrorIs(t, Router{}.Handle("a", Static(func(Channel) {})), ErrInvalidInput)
	require.Panics(t, func() { r.Route("", Static(func(Channel) {})) })
}

func TestHandleCycle(t *testing.T) {
	require := require.New(t)

	r := NewRouter()
	require.ErrorIs(r.Handle("self", r), ErrCycle)

	sub := NewRouter()
	require.NoError(r.Handle("sub", sub))
	require.ErrorIs(sub.Handle("back", r), ErrCycle)
	require.ErrorIs(sub.Handle("x/y/back", r), ErrCycle)

	// mounting the same router twice is not a cycle
	require.NoError(r.Handle("again", sub))

	// a rejected mount leaves the tree as it was
	var ran atomic.Bool
	leaf := NewRouter().Route("a", closer(&ran))
	require.ErrorIs(leaf.Handle("a/b", leaf), ErrCycle)
	require.ErrorIs(leaf.Handle("x/y/z", leaf), ErrCycle)
	_, ok := leaf.Lookup("/a")
	require.True(ok)
	require.Equal([]RouteInfo{{Path: "/a", Kind: KindStatic}}, leaf.Routes())

	require.Panics(func() { leaf.Route("loop", leaf) })
	_, ok = leaf.Lookup("/a")
	require.True(ok)
}

func TestStaticCompletesBeforeInsertReturns(t *testing.T) {
	require := require.New(t)

	var ran atomic.Bool
	r := NewRouter().Route("s", Static(func(c Channel) {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)
		_ = c.Close()
	}))

	ctx := testContext(t)
	client, server := Pipe()
	defer client.Close()
	go func() {
		var st Status
		_ = client.Send(ctx, "s")
		_ = client.Receive(ctx, &st)
	}()
	require.NoError(r.Insert(ctx, server))
	require.True(ran.Load())
}

func TestDynamicDoesNotBlockInsert(t *testing.T) {
	require := require.New(t)

	release := make(chan struct{})
	finished := make(chan struct{})
	r := NewRouter().RouteFunc("d", func(ctx context.Context, c Channel) error {
		defer close(finished)
		defer c.Close()
		<-release
		return nil
	})

	ctx := testContext(t)
	client, server := Pipe()
	defer client.Close()
	go func() {
		var st Status
		_ = client.Send(ctx, "d")
		_ = client.Receive(ctx, &st)
	}()
	require.NoError(r.Insert(ctx, server))

	select {
	case <-finished:
		t.Fatal("dynamic service finished before release")
	default:
	}
	close(release)
	<-finished
}

func TestDynamicOutlivesDispatchContext(t *testing.T) {
	require := require.New(t)

	got := make(chan error, 1)
	r := NewRouter().RouteFunc("d", func(ctx context.Context, c Channel) error {
		defer c.Close()
		time.Sleep(20 * time.Millisecond)
		got <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	client, server := Pipe()
	defer client.Close()
	require.NoError(r.ServePath(ctx, server, "d"))
	cancel()
	require.NoError(<-got)
}

func TestServicePanicClosesChannel(t *testing.T) {
	require := require.New(t)

	r := NewRouter().Route("p", Static(func(Channel) { panic("boom") }))

	ctx := testContext(t)
	client, server := Pipe()
	defer client.Close()
	require.NoError(r.ServePath(ctx, server, "p"))

	var b []byte
	require.Error(client.Receive(ctx, &b))
}

func TestServePath(t *testing.T) {
	require := require.New(t)

	var ran atomic.Bool
	r := NewRouter().Route("a", closer(&ran))

	_, server := Pipe()
	require.ErrorIs(r.ServePath(testContext(t), server, "/b"), ErrNotFound)
	require.NoError(r.ServePath(testContext(t), server, "/a"))
	require.True(ran.Load())
}

func TestConcurrentRegistrationAndResolution(t *testing.T) {
	require := require.New(t)
	ctx := testContext(t)

	const n = 200
	r := NewRouter()
	keys := make([]string, n)
	for i := range n {
		keys[i] = fmt.Sprintf("k%d", i)
		if i%2 == 0 {
			keys[i] = fmt.Sprintf("nested/k%d", i)
		}
	}

	// each service records the key it was registered under
	var served sync.Map
	svcFor := func(i int) Service {
		return Static(func(c Channel) {
			served.Store(i, keys[i])
			_ = c.Close()
		})
	}

	errs := make(chan error, 2*n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- r.Handle(keys[i], svcFor(i))
		}()
		go func() {
			defer wg.Done()
			// may or may not be registered yet
			_, _ = r.Lookup("/" + keys[i])
		}()
	}
	wg.Wait()
	require.Len(r.Routes(), n)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := dispatchPath(ctx, r, "/"+keys[i])
			if err != nil {
				errs <- err
				return
			}
			if st != Found {
				errs <- fmt.Errorf("%s: got status %v", keys[i], st)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}

	for i := range n {
		got, ok := served.Load(i)
		require.True(ok, keys[i])
		require.Equal(keys[i], got)
	}
}

// sendCounter counts the frames written through a Channel.
type sendCounter struct {
	Channel
	sends atomic.Int32
}

func (c *sendCounter) Send(ctx context.Context, v any) error {
	c.sends.Add(1)
	return c.Channel.Send(ctx, v)
}

func TestInsertPeerClosed(t *testing.T) {
	require := require.New(t)
	ctx := testContext(t)

	var ran atomic.Bool
	r := NewRouter().Route("a", closer(&ran))

	client, server := Pipe()
	defer server.Close()
	require.NoError(client.Close())

	sc := &sendCounter{Channel: server}
	err := r.Insert(ctx, sc)
	require.ErrorIs(err, io.EOF)
	require.NotErrorIs(err, ErrNotFound)
	require.Zero(sc.sends.Load())
	require.False(ran.Load())
}

func TestRoutes(t *testing.T) {
	require := require.New(t)

	noop := Static(func(Channel) {})
	r := NewRouter().
		Route("b", noop).
		Route("a/y", noop).
		RouteFunc("a/x", func(context.Context, Channel) error { return nil })

	require.Equal([]RouteInfo{
		{Path: "/a/x", Kind: KindDynamic},
		{Path: "/a/y", Kind: KindStatic},
		{Path: "/b", Kind: KindStatic},
	}, r.Routes())

	require.Empty(NewRouter().Routes())
	require.Nil(Router{}.Routes())
}

func TestCloneSharesTable(t *testing.T) {
	r := NewRouter()
	c := r.Clone()
	c.Route("a", Static(func(Channel) {}))
	_, ok := r.Lookup("/a")
	require.True(t, ok)
}

func TestGlobal(t *testing.T) {
	require := require.New(t)

	key := fmt.Sprintf("global-test-%d", time.Now().UnixNano())
	Global().Route(key, Static(func(Channel) {}))

	_, ok := Global().Lookup("/" + key)
	require.True(ok)
	require.Equal(Global().tbl, global.tbl)
}

func TestKindText(t *testing.T) {
	require := require.New(t)

	for _, k := range []Kind{KindStatic, KindDynamic} {
		text, err := k.MarshalText()
		require.NoError(err)
		var got Kind
		require.NoError(got.UnmarshalText(text))
		require.Equal(k, got)
	}
	var k Kind
	require.ErrorIs(k.UnmarshalText([]byte("lazy")), ErrInvalidInput)
	require.Equal("invalid", Kind(0).String())
}
