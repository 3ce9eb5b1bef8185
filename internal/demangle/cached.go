// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package demangle

import (
	"context"
	"sync"

	"github.com/dotandev/rpcmerge/internal/logger"
)

// Cache is persistent storage for resolved names.
type Cache interface {
	Lookup(ctx context.Context, symbol string) (string, bool, error)
	Save(ctx context.Context, symbol, name string) error
}

// Cached memoizes another demangler in memory and, when a Cache is given,
// across runs. Failed lookups are never cached.
type Cached struct {
	next  Demangler
	store Cache

	mu  sync.Mutex
	mem map[string]string
}

func NewCached(next Demangler, store Cache) *Cached {
	return &Cached{
		next:  next,
		store: store,
		mem:   make(map[string]string),
	}
}

func (c *Cached) Demangle(ctx context.Context, symbol string) (string, error) {
	c.mu.Lock()
	name, ok := c.mem[symbol]
	c.mu.Unlock()
	if ok {
		return name, nil
	}

	if c.store != nil {
		name, ok, err := c.store.Lookup(ctx, symbol)
		if err != nil {
			logger.Logger.Warn("Demangle cache lookup failed", "symbol", symbol, "error", err)
		} else if ok {
			c.remember(symbol, name)
			return name, nil
		}
	}

	name, err := c.next.Demangle(ctx, symbol)
	if err != nil {
		return name, err
	}

	c.remember(symbol, name)
	if c.store != nil {
		if err := c.store.Save(ctx, symbol, name); err != nil {
			logger.Logger.Warn("Demangle cache save failed", "symbol", symbol, "error", err)
		}
	}
	return name, nil
}

func (c *Cached) remember(symbol, name string) {
	c.mu.Lock()
	c.mem[symbol] = name
	c.mu.Unlock()
}
