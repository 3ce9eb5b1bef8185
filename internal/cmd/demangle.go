// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotandev/rpcmerge/internal/demangle"
	"github.com/dotandev/rpcmerge/internal/logger"
)

var demangleKeepHash bool

var demangleCmd = &cobra.Command{
	Use:   "demangle <symbol>...",
	Short: "Resolve symbols to logical names through the configured bridge",
	Long: `Print the logical name of each symbol, one per line, using the demangler
selected in the configuration (local, command or remote). Symbols the bridge
cannot resolve are printed unchanged.

Examples:
  rpcmerge demangle _ZN11OpenFaaSRPC8make_rpc17h0123456789abcdefE
  RPCMERGE_DEMANGLER=remote rpcmerge demangle _ZN3foo3barE`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := activeConfig
		st := openStore(cfg)
		defer closeStore(st)
		d := newDemangler(cfg, st)

		for _, symbol := range args {
			name, err := d.Demangle(cmd.Context(), symbol)
			if err != nil || name == "" {
				logger.Logger.Warn("Could not demangle symbol", "symbol", symbol, "error", err)
				name = symbol
			}
			if !demangleKeepHash {
				name = demangle.StripHash(name)
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	demangleCmd.Flags().BoolVar(&demangleKeepHash, "keep-hash", false, "Keep the trailing Rust hash segment")
	rootCmd.AddCommand(demangleCmd)
}
