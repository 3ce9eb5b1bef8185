// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"strings"

	"github.com/dotandev/rpcmerge/internal/config"
	"github.com/dotandev/rpcmerge/internal/demangle"
	"github.com/dotandev/rpcmerge/internal/logger"
	"github.com/dotandev/rpcmerge/internal/store"
	"github.com/dotandev/rpcmerge/internal/telemetry"
)

// openStore opens the cache database named by cfg. The store is optional:
// failures are logged and nil is returned.
func openStore(cfg *config.Config) *store.Store {
	if cfg.CachePath == "" {
		return nil
	}
	st, err := store.Open(cfg.CachePath)
	if err != nil {
		logger.Logger.Warn("Cache unavailable; continuing without it", "path", cfg.CachePath, "error", err)
		return nil
	}
	if !registerStoreCloseHook(st) {
		logger.Logger.Debug("No shutdown coordinator; store closes with the command")
	}
	return st
}

// closeStore releases a store that no shutdown hook owns.
func closeStore(st *store.Store) {
	shutdownState.mu.RLock()
	owned := shutdownState.coordinator != nil
	shutdownState.mu.RUnlock()
	if st == nil || owned {
		return
	}
	if err := st.Close(); err != nil {
		logger.Logger.Warn("Failed to close store", "error", err)
	}
}

// newDemangler builds the configured bridge, memoized and backed by st when
// a store is available.
func newDemangler(cfg *config.Config, st *store.Store) demangle.Demangler {
	policy := demangle.RetryPolicy{
		MaxRetries: cfg.DemanglerRetries,
		Interval:   cfg.DemanglerBackoff,
	}

	var backend demangle.Demangler
	switch cfg.Demangler {
	case config.DemanglerCommand:
		if fields := strings.Fields(cfg.DemanglerCommand); len(fields) > 0 {
			backend = demangle.NewCommand(fields[0], fields[1:], policy)
		}
	case config.DemanglerRemote:
		backend = demangle.NewClient(cfg.DemanglerURL, policy)
	}
	if backend == nil {
		backend = demangle.Local{}
	}

	var cache demangle.Cache
	if st != nil {
		cache = st
	}
	return demangle.NewCached(backend, cache)
}

// initTelemetry starts tracing when enabled. The returned func flushes the
// exporter unless the shutdown coordinator already owns that.
func initTelemetry(ctx context.Context, cfg *config.Config, service string) func() {
	noop := func() {}
	if !cfg.TelemetryEnabled {
		return noop
	}
	cleanup, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     true,
		ExporterURL: cfg.TelemetryURL,
		ServiceName: service,
		Version:     Version,
	})
	if err != nil {
		logger.Logger.Warn("Failed to initialize telemetry", "error", err)
		return noop
	}
	if registerTelemetryFlushHook(cleanup) {
		return noop
	}
	return cleanup
}
