// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestParseServiceAddr(t *testing.T) {
	require := require.New(t)

	sa, err := ParseServiceAddr("echo://tcp@127.0.0.1:8080")
	require.NoError(err)
	require.Equal("echo", sa.ID())
	require.Equal(Addr{Scheme: "tcp", Target: "127.0.0.1:8080"}, sa.Addr())
	require.Equal("echo://tcp@127.0.0.1:8080", sa.String())

	addr, id := sa.Parts()
	require.Equal(sa.Addr(), addr)
	require.Equal("echo", id)

	require.Equal(sa, NewServiceAddr(addr, id))
}

func TestParseServiceAddrLastSeparator(t *testing.T) {
	require := require.New(t)

	sa, err := ParseServiceAddr("a://b://mem@x")
	require.NoError(err)
	require.Equal("a://b", sa.ID())
	require.Equal(Addr{Scheme: "mem", Target: "x"}, sa.Addr())

	sa, err = ParseServiceAddr("sys/ping://unix@/tmp/r.sock")
	require.NoError(err)
	require.Equal("sys/ping", sa.ID())

	sa, err = ParseServiceAddr("://mem@x")
	require.NoError(err)
	require.Empty(sa.ID())
}

func TestParseServiceAddrInvalid(t *testing.T) {
	for _, in := range []string{"noscheme", "echo://noscheme", "echo:/tcp@h:1", ""} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseServiceAddr(in)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	require.Panics(t, func() { MustParseServiceAddr("noscheme") })
}

func TestServiceAddrText(t *testing.T) {
	require := require.New(t)

	sa := MustParseServiceAddr("echo://tcp@127.0.0.1:8080")
	text, err := sa.MarshalText()
	require.NoError(err)

	var got ServiceAddr
	require.NoError(got.UnmarshalText(text))
	require.Equal(sa, got)

	b, err := json.Marshal(map[string]ServiceAddr{"svc": sa})
	require.NoError(err)
	require.JSONEq(`{"svc":"echo://tcp@127.0.0.1:8080"}`, string(b))

	var m map[string]ServiceAddr
	require.NoError(json.Unmarshal(b, &m))
	require.Equal(sa, m["svc"])
}

func TestServiceAddrBinary(t *testing.T) {
	require := require.New(t)

	sa := MustParseServiceAddr("a://b://unix@/tmp/r.sock")
	b, err := sa.MarshalBinary()
	require.NoError(err)

	var got ServiceAddr
	require.NoError(got.UnmarshalBinary(b))
	require.Equal(sa, got)

	// travels through a channel as a value
	ctx := testContext(t)
	client, server := Pipe()
	defer client.Close()
	defer server.Close()
	go func() { _ = client.Send(ctx, sa) }()
	var recv ServiceAddr
	require.NoError(server.Receive(ctx, &recv))
	require.Equal(sa, recv)
}

func TestServiceAddrBinaryInvalid(t *testing.T) {
	valid, err := MustParseServiceAddr("echo://tcp@h:1").MarshalBinary()
	require.NoError(t, err)

	var swapped []byte
	swapped = protowire.AppendTag(swapped, fieldAddr, protowire.BytesType)
	swapped = protowire.AppendString(swapped, "tcp@h:1")
	swapped = protowire.AppendTag(swapped, fieldID, protowire.BytesType)
	swapped = protowire.AppendString(swapped, "echo")

	var badAddr []byte
	badAddr = protowire.AppendTag(badAddr, fieldID, protowire.BytesType)
	badAddr = protowire.AppendString(badAddr, "echo")
	badAddr = protowire.AppendTag(badAddr, fieldAddr, protowire.BytesType)
	badAddr = protowire.AppendString(badAddr, "noscheme")

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"id only", valid[:2+len("echo")]},
		{"truncated", valid[:len(valid)-1]},
		{"trailing", append(slices.Clone(valid), 0x00)},
		{"swapped", swapped},
		{"bad addr", badAddr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sa ServiceAddr
			require.ErrorIs(t, sa.UnmarshalBinary(tt.data), ErrInvalidInput)
			require.Equal(t, ServiceAddr{}, sa)
		})
	}
}

func TestServiceAddrCompare(t *testing.T) {
	require := require.New(t)

	a := MustParseServiceAddr("z://tcp@a:1")
	b := MustParseServiceAddr("a://tcp@b:1")
	c := MustParseServiceAddr("b://tcp@b:1")

	// address first, then id
	require.Negative(a.Compare(b))
	require.Negative(b.Compare(c))
	require.Equal(0, c.Compare(c))

	list := []ServiceAddr{c, a, b}
	slices.SortFunc(list, ServiceAddr.Compare)
	require.Equal([]ServiceAddr{a, b, c}, list)

	seen := map[ServiceAddr]bool{a: true}
	require.True(seen[MustParseServiceAddr("z://tcp@a:1")])
}
