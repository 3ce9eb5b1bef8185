// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package merge

import (
	"context"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/dotandev/rpcmerge/internal/clone"
	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/elide"
	"github.com/dotandev/rpcmerge/internal/irutil"
	"github.com/dotandev/rpcmerge/internal/logger"
)

// mergeCallee clones the renamed callee into a locally callable function,
// points the RPC call at it and removes the callee half's entry chain.
func (r *run) mergeCallee(ctx context.Context) {
	if r.caller() == "" {
		r.report(diag.Preconditionf("merge-callee: didn't specify caller name"))
		return
	}
	if r.callee() == "" {
		r.report(diag.Preconditionf("merge-callee: didn't specify callee name"))
		return
	}
	prof := r.profile()
	c := r.callee()

	source := irutil.FindFunction(r.m, prof.realCalleeName(c))
	if source == nil {
		r.report(diag.NotFoundf("function '%s' not found", prof.realCalleeName(c)))
		return
	}
	mergedName := prof.mergedCalleeName(c)
	if irutil.FindFunction(r.m, mergedName) != nil {
		r.report(diag.Structuralf("'%s' already exists; callee '%s' was merged before", mergedName, c))
		return
	}

	site, ok := r.findRPC(ctx)
	if !ok {
		return
	}
	args, ok := site.Args(prof.Positions)
	if !ok {
		r.report(diag.Preconditionf("RPC call in '%s' has %d arguments; positions %v are required",
			site.Caller.Name(), len(site.Site.Args()), prof.Positions))
		return
	}

	paramTypes := make([]types.Type, len(args))
	for i, a := range args {
		paramTypes[i] = a.Type()
	}
	fn, err := clone.WithSignature(source, paramTypes, mergedName)
	if err != nil {
		r.report(diag.Structuralf("cannot clone '%s': %v", source.Name(), err))
		return
	}
	if !r.resultCompatible(site, fn) {
		return
	}

	plan, pdiags := elide.NewPlan(ctx, r.loc, fn, prof.Marshalling, prof.Payload)
	r.report(pdiags...)
	if plan == nil {
		logger.Logger.WarnContext(ctx, "Skipping marshalling elision", "function", mergedName)
	}

	// Everything is resolved; edits start here.
	fn.Parent = r.m
	r.m.Funcs = append(r.m.Funcs, fn)
	r.res.Stats.FunctionsCloned++
	r.res.Changed = true
	clone.CopyCallAttributes(fn, site.Site.CalledFunc(), prof.Positions)

	if !r.replace(site, fn, args) {
		return
	}

	if plan != nil {
		n, err := plan.Apply(r.m)
		r.res.Stats.MarshallingElided += n
		if err != nil {
			r.report(diag.Structuralf("marshalling elision in '%s' stopped: %v", mergedName, err))
		}
	}

	doomed := []*ir.Func{irutil.FindFunction(r.m, prof.entryName(c))}
	if name := prof.runtimeStartName(c); name != "" {
		doomed = append(doomed, irutil.FindFunction(r.m, name))
	}
	doomed = append(doomed, source)
	for _, f := range doomed {
		if f == nil {
			continue
		}
		if irutil.RemoveFunction(r.m, f) {
			r.res.Stats.FunctionsErased++
			continue
		}
		r.report(diag.Notef("'%s' is still referenced and was kept", f.Name()))
		if f == source && clone.DetachSubprogram(fn) {
			r.report(diag.Notef("'%s' keeps its debug subprogram; dropped it from '%s'", source.Name(), mergedName))
		}
	}
}

// mergeExisting points the RPC call at a callee merged by an earlier run.
func (r *run) mergeExisting(ctx context.Context) {
	prof := r.profile()
	if prof.NameOperand >= 0 && r.callee() == "" {
		r.report(diag.Preconditionf("%s: didn't specify callee name", r.pass.opts.Mode))
		return
	}

	var target *ir.Func
	var tried []string
	if c := r.callee(); c != "" {
		tried = append(tried, prof.mergedCalleeName(c))
	}
	if prof.ExistingCallee != "" {
		tried = append(tried, prof.ExistingCallee)
	}
	for _, name := range tried {
		if target = irutil.FindFunction(r.m, name); target != nil {
			break
		}
	}
	if target == nil {
		r.report(diag.NotFoundf("no merged callee found (tried '%s')", strings.Join(tried, "', '")))
		return
	}

	site, ok := r.findRPC(ctx)
	if !ok {
		return
	}
	args, ok := site.Args(prof.Positions)
	if !ok {
		r.report(diag.Preconditionf("RPC call in '%s' has %d arguments; positions %v are required",
			site.Caller.Name(), len(site.Site.Args()), prof.Positions))
		return
	}
	if len(target.Params) != len(args) {
		r.report(diag.Structuralf("'%s' takes %d parameters but %d RPC arguments are selected",
			target.Name(), len(target.Params), len(args)))
		return
	}
	for i, a := range args {
		if !types.Equal(target.Params[i].Type(), a.Type()) {
			r.report(diag.Structuralf("parameter %d of '%s' is %s but the RPC passes %s",
				i, target.Name(), target.Params[i].Type(), a.Type()))
			return
		}
	}
	if !r.resultCompatible(site, target) {
		return
	}

	r.res.Changed = r.replace(site, target, args)
}

// resultCompatible rejects a replacement whose return type differs from
// an RPC result that is still used.
func (r *run) resultCompatible(site rpcSite, fn *ir.Func) bool {
	old := site.Site.Value()
	if types.Equal(old.Type(), fn.Sig.RetType) || len(irutil.CodeUses(site.Caller, old)) == 0 {
		return true
	}
	r.report(diag.Structuralf("RPC result %s of type %s is used but '%s' returns %s",
		old.Ident(), old.Type(), fn.Name(), fn.Sig.RetType))
	return false
}

// replace swaps the RPC call site for a direct call to fn.
func (r *run) replace(site rpcSite, fn *ir.Func, args []value.Value) bool {
	call := ir.NewCall(fn, args...)
	if site.Site.Exceptional() {
		call.Metadata = site.Site.Invoke.Metadata
	} else {
		call.Metadata = site.Site.Call.Metadata
	}
	if err := irutil.ReplaceCallSite(site.Caller, site.Site, call); err != nil {
		r.report(diag.Structuralf("cannot replace RPC call in '%s': %v", site.Caller.Name(), err))
		return false
	}
	r.res.Stats.CallSitesReplaced++
	logger.Logger.Debug("Replaced RPC call",
		"caller", site.Caller.Name(),
		"target", fn.Name(),
		"exceptional", site.Site.Exceptional())
	return true
}
