// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotandev/rpcmerge/internal/config"
	"github.com/dotandev/rpcmerge/internal/daemon"
	"github.com/dotandev/rpcmerge/internal/logger"
)

var (
	serveAddr      string
	serveAuthToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve-demangler",
	Short: "Start the JSON-RPC demangling bridge",
	Long: `Start a JSON-RPC 2.0 server that resolves symbols for remote rpcmerge runs.

Endpoints:
  - /rpc     Demangler.Demangle {"symbol": "..."} -> {"name": "..."}
  - /health  liveness check

The bridge answers with the local demangler, or with the configured external
command when demangler = command.

Example:
  rpcmerge serve-demangler --addr :8090
  rpcmerge serve-demangler --addr :8090 --auth-token secret123`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := *activeConfig
		if cfg.Demangler == config.DemanglerRemote {
			logger.Logger.Warn("A bridge cannot forward to another bridge; answering locally")
			cfg.Demangler = config.DemanglerLocal
		}

		defer initTelemetry(ctx, &cfg, "rpcmerge-demangler")()
		st := openStore(&cfg)
		defer closeStore(st)

		server := daemon.NewServer(daemon.Config{
			Addr:      serveAddr,
			AuthToken: serveAuthToken,
		}, newDemangler(&cfg, st))

		fmt.Fprintf(cmd.OutOrStdout(), "Starting demangling bridge on %s\n", serveAddr)
		if serveAuthToken != "" {
			fmt.Fprintln(cmd.OutOrStdout(), "Authentication: enabled")
		}
		return server.Start(ctx, serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8090", "Address to listen on")
	serveCmd.Flags().StringVar(&serveAuthToken, "auth-token", "", "Bearer token required from clients")
	rootCmd.AddCommand(serveCmd)
}
