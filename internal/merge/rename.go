// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package merge

import (
	"github.com/llir/llvm/ir"

	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/irutil"
	"github.com/dotandev/rpcmerge/internal/locate"
)

// renameCaller appends _<caller> to every non-intrinsic function so the
// caller half links without clashing with the callee half.
func (r *run) renameCaller() {
	if r.caller() == "" {
		r.report(diag.Preconditionf("rename-caller: didn't specify caller name"))
		return
	}
	names := make(map[*ir.Func]string)
	for _, f := range r.m.Funcs {
		if !irutil.IsIntrinsic(f.Name()) {
			names[f] = f.Name() + "_" + r.caller()
		}
	}
	r.applyRenames(names)
}

// renameCallee gives the callee half's well-known functions profile names
// and suffixes the rest with _<callee>.
func (r *run) renameCallee() {
	c := r.callee()
	if c == "" {
		r.report(diag.Preconditionf("rename-callee: didn't specify callee name"))
		return
	}
	prof := r.profile()

	entry := irutil.FindFunction(r.m, "main")
	if entry == nil {
		r.report(diag.NotFoundf("function 'main' not found"))
		return
	}
	boot, ok, diags := locate.FindBootstrapCall(entry)
	r.report(diags...)
	if !ok {
		r.report(diag.NotFoundf("no call in 'main' passes the real entry point as its first argument"))
		return
	}

	special := map[*ir.Func]string{}
	if prof.RuntimeStart != "" {
		if start, ok := locate.FindRuntimeStart(entry); ok {
			special[start] = prof.runtimeStartName(c)
		}
	}
	special[entry] = prof.entryName(c)
	special[boot.Target] = prof.realCalleeName(c)

	names := make(map[*ir.Func]string)
	for _, f := range r.m.Funcs {
		if irutil.IsIntrinsic(f.Name()) {
			continue
		}
		if name, ok := special[f]; ok {
			names[f] = name
			continue
		}
		names[f] = f.Name() + "_" + c
	}
	r.applyRenames(names)
}

// applyRenames checks the new names are unique across the module and only
// then renames.
func (r *run) applyRenames(names map[*ir.Func]string) {
	final := make(map[string]*ir.Func, len(r.m.Funcs))
	for _, f := range r.m.Funcs {
		name, ok := names[f]
		if !ok {
			name = f.Name()
		}
		if other, dup := final[name]; dup {
			r.report(diag.Structuralf("renaming would give '%s' and '%s' the same name '%s'",
				other.Name(), f.Name(), name))
			return
		}
		final[name] = f
	}

	for _, f := range r.m.Funcs {
		if name, ok := names[f]; ok && name != f.Name() {
			f.SetName(name)
			r.res.Stats.FunctionsRenamed++
		}
	}
	r.res.Changed = r.res.Stats.FunctionsRenamed > 0
}
