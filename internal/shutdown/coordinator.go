// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package shutdown releases the resources a command acquired (the sqlite
// store, the trace exporter) when it finishes or is interrupted.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type HookFunc func(context.Context) error

type namedHook struct {
	name string
	fn   HookFunc
}

// Coordinator runs registered hooks once, newest first, so a resource is
// released before the ones it was built on.
type Coordinator struct {
	mu    sync.Mutex
	hooks []namedHook
	done  bool
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Register adds a hook. Hooks registered after Run are dropped.
func (c *Coordinator) Register(name string, fn HookFunc) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.hooks = append(c.hooks, namedHook{name: name, fn: fn})
	}
}

// Len reports how many hooks are waiting to run.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return 0
	}
	return len(c.hooks)
}

// Run executes the hooks and joins their errors. When ctx has a deadline
// the remaining time is split evenly across the hooks still to run.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return nil
	}
	c.done = true
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		hookCtx, cancel := slice(ctx, i+1)
		if err := hooks[i].fn(hookCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, err))
		}
		cancel()
	}
	return errors.Join(errs...)
}

func slice(ctx context.Context, remainingHooks int) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return ctx, func() {}
	}
	left := time.Until(deadline)
	if left <= 0 {
		return context.WithTimeout(ctx, time.Millisecond)
	}
	share := left / time.Duration(remainingHooks)
	if share <= 0 {
		share = left
	}
	return context.WithTimeout(ctx, share)
}
