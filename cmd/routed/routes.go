// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/luxfi/route"
	"github.com/luxfi/route/internal/config"
)

func routesCmd() *cobra.Command {
	var (
		admin   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the services of a running routed",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := url.Parse(admin)
			if err != nil {
				return oops.In("routes").Wrapf(err, "--admin")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var reply route.RoutesReply
			if err := route.SendJSONRequest(ctx, uri, "Admin.Routes", &route.RoutesArgs{}, &reply); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tKIND")
			for _, ri := range reply.Routes {
				fmt.Fprintf(w, "%s\t%s\n", ri.Path, ri.Kind)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&admin, "admin", "http://"+config.DefaultAdminAddr+"/rpc", "Admin JSON-RPC endpoint")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Request timeout")

	return cmd
}
