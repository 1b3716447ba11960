// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command routed serves and calls route services.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "routed",
		Short: "Serve and call services addressed by path",
		Long: `routed hosts a router of services behind encrypted listeners and
dials services on remote routers.

Addresses look like scheme@target, for example tcp@127.0.0.1:7400 or
unix@/run/routed.sock. A service address adds the service path in front:
sys/ping://tcp@127.0.0.1:7400.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(),
		callCmd(),
		keygenCmd(),
		routesCmd(),
		versionCmd(),
	)
	return root
}
