// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package locate resolves functions and call sites by literal name, by
// demangled logical name and by logical-name prefix. Lookups scan blocks
// then instructions in program order and the first match wins. They never
// fail hard; an empty result is reported by the caller.
package locate

import (
	"context"
	"strings"

	"github.com/llir/llvm/ir"

	"github.com/dotandev/rpcmerge/internal/demangle"
	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/irutil"
	"github.com/dotandev/rpcmerge/internal/logger"
)

// Locator resolves logical names through a demangler. Results are
// memoized for the lifetime of the Locator.
type Locator struct {
	demangler demangle.Demangler
	suffixes  []string
	names     map[string]string
	diags     diag.List
}

// New returns a Locator. suffixes are partition suffixes (caller or callee
// names) that rename modes append to mangled names; they are stripped
// before demangling.
func New(d demangle.Demangler, suffixes ...string) *Locator {
	if d == nil {
		d = demangle.Local{}
	}
	var keep []string
	for _, s := range suffixes {
		if s != "" {
			keep = append(keep, s)
		}
	}
	return &Locator{
		demangler: d,
		suffixes:  keep,
		names:     make(map[string]string),
	}
}

// Diagnostics returns findings collected while demangling, such as an
// unreachable bridge.
func (l *Locator) Diagnostics() diag.List {
	return l.diags
}

// StripSuffix removes one known partition suffix from name.
func (l *Locator) StripSuffix(name string) string {
	for _, s := range l.suffixes {
		if trimmed, ok := strings.CutSuffix(name, "_"+s); ok && trimmed != "" {
			return trimmed
		}
	}
	return name
}

// Logical returns the demangled name of symbol with any partition suffix
// and Rust hash removed. When the bridge fails the raw name is used.
func (l *Locator) Logical(ctx context.Context, symbol string) string {
	if name, ok := l.names[symbol]; ok {
		return name
	}
	base := l.StripSuffix(symbol)
	name, err := l.demangler.Demangle(ctx, base)
	if err != nil || name == "" {
		if err != nil {
			logger.Logger.Warn("Falling back to raw symbol name", "symbol", base, "error", err)
			l.diags.Add(diag.Unavailablef("could not demangle '%s': %v", base, err))
		}
		name = base
	}
	name = demangle.StripHash(name)
	l.names[symbol] = name
	return name
}

// CalleeName is the logical name of the function called at cs, or "" for
// an indirect call.
func (l *Locator) CalleeName(ctx context.Context, cs irutil.CallSite) string {
	f := cs.CalledFunc()
	if f == nil {
		return ""
	}
	return l.Logical(ctx, f.Name())
}

// Match returns the first call site of fn of the given kind for which
// pred holds. pred receives the callee's logical name.
func (l *Locator) Match(ctx context.Context, fn *ir.Func, kind irutil.CallKind,
	pred func(cs irutil.CallSite, logical string) bool) (irutil.CallSite, bool) {
	if fn == nil {
		return irutil.CallSite{}, false
	}
	for _, cs := range irutil.CallSites(fn) {
		if !cs.Accepts(kind) {
			continue
		}
		name := l.CalleeName(ctx, cs)
		if name == "" {
			continue
		}
		if pred(cs, name) {
			return cs, true
		}
	}
	return irutil.CallSite{}, false
}

// FindCallSiteByNamePrefix returns the first call site whose target's
// logical name starts with prefix.
func (l *Locator) FindCallSiteByNamePrefix(ctx context.Context, fn *ir.Func, prefix string, kind irutil.CallKind) (irutil.CallSite, bool) {
	return l.Match(ctx, fn, kind, func(_ irutil.CallSite, name string) bool {
		return strings.HasPrefix(name, prefix)
	})
}

// FindCallSiteByDemangledName returns the first call site whose target's
// logical name equals name.
func (l *Locator) FindCallSiteByDemangledName(ctx context.Context, fn *ir.Func, name string, kind irutil.CallKind) (irutil.CallSite, bool) {
	return l.Match(ctx, fn, kind, func(_ irutil.CallSite, logical string) bool {
		return logical == name
	})
}

// FindFunction looks a function up by its literal symbol name.
func FindFunction(m *ir.Module, name string) *ir.Func {
	return irutil.FindFunction(m, name)
}

// FindCallSiteByCalledFunction returns the first call site in caller whose
// target is callee.
func FindCallSiteByCalledFunction(caller, callee *ir.Func) (irutil.CallSite, bool) {
	if caller == nil || callee == nil {
		return irutil.CallSite{}, false
	}
	for _, cs := range irutil.CallSites(caller) {
		if cs.CalledFunc() == callee {
			return cs, true
		}
	}
	return irutil.CallSite{}, false
}
