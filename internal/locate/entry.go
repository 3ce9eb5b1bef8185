// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package locate

import (
	"github.com/llir/llvm/ir"

	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/irutil"
)

// Bootstrap is the runtime start-up call of an entry function together with
// the real program entry passed as its first argument.
type Bootstrap struct {
	Site   irutil.CallSite
	Target *ir.Func
}

// FindBootstrapCall returns the first call site in entry whose first
// argument is a function, seen through constant casts. Call sites with
// arguments whose first argument is some other value are skipped and each
// reported as structural.
func FindBootstrapCall(entry *ir.Func) (Bootstrap, bool, diag.List) {
	var diags diag.List
	if entry == nil {
		return Bootstrap{}, false, diags
	}
	for _, cs := range irutil.CallSites(entry) {
		callee := cs.CalledFunc()
		if callee == nil || irutil.IsIntrinsic(callee.Name()) {
			continue
		}
		first := cs.Arg(0)
		if first == nil {
			continue
		}
		if target, ok := irutil.StripCasts(first).(*ir.Func); ok {
			return Bootstrap{Site: cs, Target: target}, true, diags
		}
		diags.Add(diag.Structuralf(
			"skipping call to '%s' in '%s': first argument is not a function",
			callee.Name(), entry.Name()))
	}
	return Bootstrap{}, false, diags
}

// FindRuntimeStart returns the target of the last call site in entry, in
// program order, that calls a non-intrinsic function directly.
func FindRuntimeStart(entry *ir.Func) (*ir.Func, bool) {
	if entry == nil {
		return nil, false
	}
	sites := irutil.CallSites(entry)
	for i := len(sites) - 1; i >= 0; i-- {
		f := sites[i].CalledFunc()
		if f != nil && !irutil.IsIntrinsic(f.Name()) {
			return f, true
		}
	}
	return nil, false
}
