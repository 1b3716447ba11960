// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the routed daemon configuration.
package config

import (
	"crypto/tls"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/luxfi/route"
)

// EnvPrefix prefixes environment overrides, e.g. ROUTED_LOG_LEVEL.
const EnvPrefix = "ROUTED"

type Config struct {
	Listen           []string      `mapstructure:"listen"`
	IdentityFile     string        `mapstructure:"identity_file"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	Admin            AdminConfig   `mapstructure:"admin"`
	Metrics          MetricsConfig `mapstructure:"metrics"`
	Log              LogConfig     `mapstructure:"log"`
	TLS              TLSConfig     `mapstructure:"tls"`
}

type AdminConfig struct {
	// Addr is the HTTP address of the admin endpoint. Empty disables it.
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// TLSConfig is only needed for wss listeners.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

var DefaultListen = []string{"tcp@127.0.0.1:7400"}

const DefaultAdminAddr = "127.0.0.1:7480"

// SetDefaults registers every key with its default value. Keys without a
// default are invisible to environment overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("identity_file", "")
	v.SetDefault("handshake_timeout", route.DefaultHandshakeTimeout)
	v.SetDefault("admin.addr", DefaultAdminAddr)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
}

// Load reads file (YAML, optional) and the environment into a Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, oops.In("config").With("file", file).Wrapf(err, "read config")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, oops.In("config").Wrapf(err, "decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values viper cannot check.
func (c *Config) Validate() error {
	if len(c.Listen) == 0 {
		return oops.In("config").Wrapf(route.ErrInvalidInput, "no listen address")
	}
	if _, err := c.Addrs(); err != nil {
		return err
	}
	if c.HandshakeTimeout <= 0 {
		return oops.In("config").Wrapf(route.ErrInvalidInput, "handshake_timeout must be positive, got %s", c.HandshakeTimeout)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return oops.In("config").Wrapf(route.ErrInvalidInput, "tls.cert_file and tls.key_file go together")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return oops.In("config").Wrapf(errors.Join(route.ErrInvalidInput, err), "log.level")
	}
	return nil
}

// Addrs parses the listen addresses.
func (c *Config) Addrs() ([]route.Addr, error) {
	addrs := make([]route.Addr, 0, len(c.Listen))
	for _, s := range c.Listen {
		a, err := route.ParseAddr(s)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// Logger builds the zap logger described by the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, oops.In("config").Wrapf(err, "log.level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// TLSConfig loads the certificate pair, or returns nil when none is set.
func (c *Config) TLSConfig() (*tls.Config, error) {
	if c.TLS.CertFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
	if err != nil {
		return nil, oops.In("config").Wrapf(err, "load tls key pair")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LoadIdentity reads a hex-encoded private key. An empty path yields a
// fresh identity that lasts for the process.
func LoadIdentity(path string) (route.Identity, error) {
	if path == "" {
		return route.GenerateIdentity()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return route.Identity{}, oops.In("config").With("file", path).Wrapf(err, "read identity")
	}
	priv, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return route.Identity{}, oops.In("config").With("file", path).Wrapf(errors.Join(route.ErrInvalidInput, err), "decode identity")
	}
	return route.IdentityFromPrivate(priv)
}

// WriteIdentity stores the private key of id at path, readable by the
// owner only.
func WriteIdentity(path string, id route.Identity) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return oops.In("config").Wrapf(err, "create %s", dir)
		}
	}
	data := hex.EncodeToString(id.Private()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return oops.In("config").With("file", path).Wrapf(err, "write identity")
	}
	return nil
}
