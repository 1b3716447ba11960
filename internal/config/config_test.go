// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/route"
)

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)

	c, err := Load(viper.New(), "")
	require.NoError(err)
	require.Equal(DefaultListen, c.Listen)
	require.Equal(route.DefaultHandshakeTimeout, c.HandshakeTimeout)
	require.Equal(DefaultAdminAddr, c.Admin.Addr)
	require.True(c.Metrics.Enabled)
	require.Equal("info", c.Log.Level)

	addrs, err := c.Addrs()
	require.NoError(err)
	require.Equal([]route.Addr{{Scheme: "tcp", Target: "127.0.0.1:7400"}}, addrs)
}

func TestLoadFile(t *testing.T) {
	require := require.New(t)

	file := filepath.Join(t.TempDir(), "routed.yaml")
	require.NoError(os.WriteFile(file, []byte(`
listen:
  - tcp@0.0.0.0:9000
  - mem@node
handshake_timeout: 3s
admin:
  addr: ""
log:
  level: debug
  development: true
`), 0o600))

	c, err := Load(viper.New(), file)
	require.NoError(err)
	require.Equal([]string{"tcp@0.0.0.0:9000", "mem@node"}, c.Listen)
	require.Equal(3*time.Second, c.HandshakeTimeout)
	require.Empty(c.Admin.Addr)
	require.Equal("debug", c.Log.Level)
	require.True(c.Log.Development)

	log, err := c.Logger()
	require.NoError(err)
	require.NotNil(log)
}

func TestLoadEnv(t *testing.T) {
	require := require.New(t)

	t.Setenv("ROUTED_LOG_LEVEL", "warn")
	t.Setenv("ROUTED_METRICS_ENABLED", "false")

	c, err := Load(viper.New(), "")
	require.NoError(err)
	require.Equal("warn", c.Log.Level)
	require.False(c.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no listen", func(c *Config) { c.Listen = nil }},
		{"bad listen", func(c *Config) { c.Listen = []string{"noscheme"} }},
		{"bad timeout", func(c *Config) { c.HandshakeTimeout = 0 }},
		{"half tls", func(c *Config) { c.TLS.CertFile = "cert.pem" }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(viper.New(), "")
			require.NoError(t, err)
			tt.mutate(c)
			require.ErrorIs(t, c.Validate(), route.ErrInvalidInput)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestIdentityRoundTrip(t *testing.T) {
	require := require.New(t)

	id, err := route.GenerateIdentity()
	require.NoError(err)

	path := filepath.Join(t.TempDir(), "keys", "node.key")
	require.NoError(WriteIdentity(path, id))

	info, err := os.Stat(path)
	require.NoError(err)
	require.Equal(os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadIdentity(path)
	require.NoError(err)
	require.Equal(id.Public(), got.Public())
	require.Equal(id.Private(), got.Private())
}

func TestLoadIdentityInvalid(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "node.key")
	require.NoError(os.WriteFile(path, []byte("not hex"), 0o600))
	_, err := LoadIdentity(path)
	require.ErrorIs(err, route.ErrInvalidInput)

	id, err := LoadIdentity("")
	require.NoError(err)
	require.False(id.IsZero())
}

func TestTLSConfigUnset(t *testing.T) {
	c, err := Load(viper.New(), "")
	require.NoError(t, err)
	tc, err := c.TLSConfig()
	require.NoError(t, err)
	require.Nil(t, tc)
}
