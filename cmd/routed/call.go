// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/luxfi/route"
	"github.com/luxfi/route/internal/config"
)

func callCmd() *cobra.Command {
	var (
		timeout  time.Duration
		count    int
		identity string
		peer     string
	)

	cmd := &cobra.Command{
		Use:   "call <id://scheme@target> [message...]",
		Short: "Connect to a remote service and print its replies",
		Long: `Call connects to a service, sends the message (if any) and prints
replies. With --count 0 it reads until the service closes the channel.

  routed call sys/ping://tcp@127.0.0.1:7400
  routed call echo://tcp@127.0.0.1:7400 hello world`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sa, err := route.ParseServiceAddr(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var opts []route.DialOption
			if identity != "" {
				id, err := config.LoadIdentity(identity)
				if err != nil {
					return err
				}
				opts = append(opts, route.WithIdentity(id))
			}
			if peer != "" {
				want, err := hex.DecodeString(peer)
				if err != nil {
					return oops.In("call").Wrapf(err, "--peer")
				}
				opts = append(opts, route.WithVerifier(pinnedPeer(want)))
			}

			c, err := sa.Connect(ctx, opts...)
			if err != nil {
				return err
			}
			defer c.Close()

			if len(args) > 1 {
				if err := c.Send(ctx, strings.Join(args[1:], " ")); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for n := 0; count == 0 || n < count; n++ {
				var reply string
				if err := c.Receive(ctx, &reply); err != nil {
					if errors.Is(err, io.EOF) && n > 0 {
						return nil
					}
					return err
				}
				fmt.Fprintln(out, reply)
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Overall call timeout")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Replies to read, 0 reads until closed")
	cmd.Flags().StringVar(&identity, "identity", "", "Hex private key file to dial with")
	cmd.Flags().StringVar(&peer, "peer", "", "Hex public key the server must present")

	return cmd
}

// pinnedPeer accepts only the static key want.
func pinnedPeer(want []byte) route.Verifier {
	return func(remote []byte) error {
		if !bytes.Equal(remote, want) {
			return oops.In("call").Errorf("peer key %x does not match %x", remote, want)
		}
		return nil
	}
}
