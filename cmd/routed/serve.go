// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/luxfi/route"
	"github.com/luxfi/route/internal/config"
	"github.com/luxfi/route/internal/services"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built-in services on every configured listener",
		Long: `Serve binds each listen address from the configuration and dispatches
incoming connections to the built-in services:

  echo        sends back every message
  sys/ping    answers "pong"
  sys/time    answers the server time
  sys/routes  answers the route listing as JSON

The admin endpoint serves JSON-RPC on /rpc and Prometheus metrics on
/metrics. Settings can be overridden with ROUTED_* environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "Config file (YAML)")
	cmd.Flags().StringSlice("listen", config.DefaultListen, "Listen addresses")
	cmd.Flags().String("identity_file", "", "Hex private key file; a fresh key is used when empty")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ident, err := config.LoadIdentity(cfg.IdentityFile)
	if err != nil {
		return err
	}
	addrs, err := cfg.Addrs()
	if err != nil {
		return err
	}
	tlsConf, err := cfg.TLSConfig()
	if err != nil {
		return err
	}

	router := route.NewRouter().WithLogger(log)
	if err := services.Register(router); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	opts := []route.ServerOption{
		route.WithLogger(log),
		route.WithServerIdentity(ident),
		route.WithServerTLSConfig(tlsConf),
		route.WithHandshakeTimeout(cfg.HandshakeTimeout),
	}
	if cfg.Metrics.Enabled {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, route.WithMetrics(route.NewMetrics(reg)))
	}

	servers := make([]*route.Server, 0, len(addrs))
	defer func() {
		for _, s := range servers {
			_ = s.Close()
		}
	}()
	for _, a := range addrs {
		s, err := route.Bind(ctx, a, router, opts...)
		if err != nil {
			return err
		}
		servers = append(servers, s)
		log.Info("listening", zap.Stringer("addr", s.Addr()))
	}

	if cfg.Admin.Addr != "" {
		admin, err := adminServer(ctx, cfg.Admin.Addr, router, reg, cfg.Metrics.Enabled, log)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = admin.Shutdown(sctx)
		}()
	}

	log.Info("routed started",
		zap.String("version", version),
		zap.Stringer("identity", ident),
		zap.Int("routes", len(router.Routes())),
	)
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func adminServer(ctx context.Context, addr string, r route.Router, reg *prometheus.Registry, metrics bool, log *zap.Logger) (*http.Server, error) {
	rpc, err := route.NewAdminHandler(r)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/rpc", rpc)
	if metrics {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, oops.In("admin").With("addr", addr).Wrapf(err, "listen")
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: route.DefaultHandshakeTimeout,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server stopped", zap.Error(err))
		}
	}()
	log.Info("admin listening", zap.Stringer("addr", ln.Addr()))
	return srv, nil
}
