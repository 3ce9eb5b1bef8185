// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotandev/rpcmerge/internal/config"
	"github.com/dotandev/rpcmerge/internal/logger"
	"github.com/dotandev/rpcmerge/internal/shutdown"
)

// Global flag variables
var (
	LogLevelFlag string
	LogJSONFlag  bool
	NoColorFlag  bool
)

// activeConfig is loaded once per invocation by the root command.
var activeConfig = config.DefaultConfig()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rpcmerge",
	Short: "Split and merge RPC caller/callee functions in LLVM IR",
	Long: `rpcmerge rewrites compiled LLVM IR to move a function-call boundary across a
process edge. It can split a program into separately deployable caller and
callee halves, or merge the halves back by turning the RPC stub call into a
direct call to a local copy of the callee.

Examples:
  rpcmerge run --rename-caller --caller frontend caller.ll -o caller.split.ll
  rpcmerge run --rename-callee --callee backend --profile rust callee.ll
  rpcmerge run --merge-callee --caller frontend --callee backend linked.ll
  rpcmerge run --replace-make-rpc main.ll
  rpcmerge inspect linked.ll
  rpcmerge serve-demangler --addr :8090

Configuration is read from .rpcmerge.toml and RPCMERGE_* environment variables.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if LogLevelFlag != "" {
			cfg = cfg.WithLogLevel(LogLevelFlag)
		}
		if LogJSONFlag {
			logger.SetOutput(cmd.ErrOrStderr(), true)
		}
		logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
		activeConfig = cfg
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it until it
// finishes or the process is interrupted. This is called by main.main().
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	coordinator := shutdown.NewCoordinator()
	setShutdownCoordinator(coordinator)
	defer clearShutdownCoordinator()

	return executeWithSignals(ctx, cancel, sigCh, coordinator, rootCmd.ExecuteContext)
}

// executeWithSignals runs exec and, whichever of completion or a signal
// comes first, runs the shutdown hooks. A signal cancels ctx and yields
// ErrInterrupted.
func executeWithSignals(
	ctx context.Context,
	cancel context.CancelFunc,
	sigCh <-chan os.Signal,
	coordinator *shutdown.Coordinator,
	exec func(context.Context) error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- exec(ctx)
	}()

	select {
	case err := <-done:
		runShutdownHooksWithTimeout(coordinator, shutdownTimeout)
		return err
	case sig := <-sigCh:
		logger.Logger.Warn("Received signal, shutting down", "signal", sig.String())
		cancel()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			logger.Logger.Warn("Command did not stop before the shutdown timeout")
		}
		runShutdownHooksWithTimeout(coordinator, shutdownTimeout)
		return ErrInterrupted
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&LogLevelFlag,
		"log-level",
		"",
		"Log level (debug, info, warn, error); overrides the configuration",
	)
	rootCmd.PersistentFlags().BoolVar(
		&LogJSONFlag,
		"log-json",
		false,
		"Write logs as JSON",
	)
	rootCmd.PersistentFlags().BoolVar(
		&NoColorFlag,
		"no-color",
		false,
		"Disable coloured diagnostics",
	)
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", completeLogLevelFlag)
}
