// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/dotandev/rpcmerge/internal/logger"
	"github.com/dotandev/rpcmerge/internal/shutdown"
	"github.com/dotandev/rpcmerge/internal/store"
)

const shutdownTimeout = 3 * time.Second

var shutdownState struct {
	mu          sync.RWMutex
	coordinator *shutdown.Coordinator
}

func setShutdownCoordinator(c *shutdown.Coordinator) {
	shutdownState.mu.Lock()
	defer shutdownState.mu.Unlock()
	shutdownState.coordinator = c
}

func clearShutdownCoordinator() {
	shutdownState.mu.Lock()
	defer shutdownState.mu.Unlock()
	shutdownState.coordinator = nil
}

// registerShutdownHook reports whether a coordinator took the hook; callers
// clean up themselves when it did not.
func registerShutdownHook(name string, fn shutdown.HookFunc) bool {
	shutdownState.mu.RLock()
	c := shutdownState.coordinator
	shutdownState.mu.RUnlock()
	if c == nil {
		return false
	}
	c.Register(name, fn)
	return true
}

func runShutdownHooksWithTimeout(c *shutdown.Coordinator, timeout time.Duration) {
	if c == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		logger.Logger.Warn("Shutdown hooks completed with errors", "error", err)
	}
}

func registerStoreCloseHook(st *store.Store) bool {
	if st == nil {
		return false
	}
	return registerShutdownHook("store-close", func(ctx context.Context) error {
		if err := st.Cleanup(ctx, store.DefaultMaxRuns); err != nil {
			logger.Logger.Warn("Failed to trim run history", "error", err)
		}
		return st.Close()
	})
}

func registerTelemetryFlushHook(cleanup func()) bool {
	if cleanup == nil {
		return false
	}
	return registerShutdownHook("telemetry-flush", func(ctx context.Context) error {
		_ = ctx
		cleanup()
		return nil
	})
}
