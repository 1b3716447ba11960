// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/route"
	"github.com/luxfi/route/internal/services"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func testServer(t *testing.T) (*route.Server, route.Router) {
	t.Helper()
	r := route.NewRouter()
	require.NoError(t, services.Register(r))
	s, err := route.Bind(context.Background(), route.MustParseAddr("tcp@127.0.0.1:0"), r)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, r
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version", "--short")
	require.NoError(t, err)
	require.Equal(t, version+"\n", out)
}

func TestKeygen(t *testing.T) {
	require := require.New(t)

	file := filepath.Join(t.TempDir(), "node.key")
	out, err := run(t, "keygen", "--out", file)
	require.NoError(err)
	require.Len(strings.TrimSpace(out), 64)

	_, err = os.Stat(file)
	require.NoError(err)

	_, err = run(t, "keygen", "--out", file)
	require.Error(err)
	_, err = run(t, "keygen", "--out", file, "--force")
	require.NoError(err)
}

func TestCall(t *testing.T) {
	require := require.New(t)
	s, _ := testServer(t)

	out, err := run(t, "call", "sys/ping://"+s.Addr().String())
	require.NoError(err)
	require.Equal("pong\n", out)

	out, err = run(t, "call", "echo://"+s.Addr().String(), "hello", "world")
	require.NoError(err)
	require.Equal("hello world\n", out)

	_, err = run(t, "call", "missing://"+s.Addr().String())
	require.ErrorIs(err, route.ErrNotFound)
}

func TestCallPinnedPeer(t *testing.T) {
	require := require.New(t)
	s, _ := testServer(t)

	_, err := run(t, "call", "--peer", s.Identity().String(), "sys/ping://"+s.Addr().String())
	require.NoError(err)

	other, err := route.GenerateIdentity()
	require.NoError(err)
	_, err = run(t, "call", "--peer", other.String(), "sys/ping://"+s.Addr().String())
	require.ErrorIs(err, route.ErrHandshake)
}

func TestRoutes(t *testing.T) {
	require := require.New(t)
	_, r := testServer(t)

	h, err := route.NewAdminHandler(r)
	require.NoError(err)
	admin := httptest.NewServer(h)
	defer admin.Close()

	out, err := run(t, "routes", "--admin", admin.URL)
	require.NoError(err)
	require.Contains(out, "/sys/ping")
	require.Contains(out, "static")
	require.Contains(out, "/echo")
}
