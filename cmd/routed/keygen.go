// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/luxfi/route"
	"github.com/luxfi/route/internal/config"
)

func keygenCmd() *cobra.Command {
	var (
		out   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a static identity key",
		Long: `Keygen writes a new hex-encoded private key to --out and prints the
matching public key. Point identity_file at the key to keep a stable
identity across restarts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(out); err == nil {
					return oops.In("keygen").With("file", out).Errorf("%s exists, use --force to replace it", out)
				}
			}
			id, err := route.GenerateIdentity()
			if err != nil {
				return err
			}
			if err := config.WriteIdentity(out, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "routed.key", "Private key file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing key file")

	return cmd
}
