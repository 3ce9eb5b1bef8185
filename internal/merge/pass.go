// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package merge moves a call boundary across a process edge in LLVM IR. It
// either splits a program into separately deployable caller and callee
// halves by renaming their symbols, or merges the halves back by turning
// the RPC stub call into a direct call.
package merge

import (
	"context"

	"github.com/llir/llvm/ir"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dotandev/rpcmerge/internal/demangle"
	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/elide"
	"github.com/dotandev/rpcmerge/internal/locate"
	"github.com/dotandev/rpcmerge/internal/logger"
	"github.com/dotandev/rpcmerge/internal/telemetry"
)

// Options configure a single pass.
type Options struct {
	Mode    Mode
	Caller  string
	Callee  string
	Profile Profile

	// Demangler resolves logical names; nil uses the in-process demangler.
	Demangler demangle.Demangler

	// Payload overrides the profile's default copy layout when non-zero.
	Payload elide.Payload
}

// Pass runs one transformation over a module.
type Pass struct {
	opts    Options
	profile Profile
}

// New builds a pass. ReplaceMakeRPC always runs with the Go profile and an
// empty profile defaults to Go.
func New(opts Options) *Pass {
	profile := opts.Profile
	if opts.Mode == ReplaceMakeRPC || profile.Name == "" {
		profile = GoProfile
	}
	if opts.Payload.Size != 0 {
		profile.Payload = opts.Payload
	}
	return &Pass{opts: opts, profile: profile}
}

// Profile returns the profile the pass runs with.
func (p *Pass) Profile() Profile {
	return p.profile
}

// Run applies the configured mode to m in place. Every mode resolves and
// validates everything it needs before the first edit, so a run that
// reports diagnostics without Changed left m untouched.
func (p *Pass) Run(ctx context.Context, m *ir.Module) Result {
	ctx, span := telemetry.StartRun(ctx, p.opts.Mode.String(), p.profile.Name)
	defer span.End()
	ctx = logger.WithRun(ctx, p.opts.Mode.String(), p.profile.Name)

	r := &run{
		pass: p,
		m:    m,
		loc:  locate.New(p.opts.Demangler, p.opts.Caller, p.opts.Callee),
		res:  Result{Mode: p.opts.Mode},
	}

	switch p.opts.Mode {
	case RenameCaller:
		r.renameCaller()
	case RenameCallee:
		r.renameCallee()
	case MergeCallee:
		r.mergeCallee(ctx)
	case MergeExistingCallee, ReplaceMakeRPC:
		r.mergeExisting(ctx)
	default:
		r.res.Diagnostics.Add(diag.Preconditionf("no transformation mode selected"))
	}
	r.res.Diagnostics.Add(r.loc.Diagnostics()...)

	span.SetAttributes(
		attribute.Bool("rpcmerge.changed", r.res.Changed),
		attribute.Int("rpcmerge.diagnostics", len(r.res.Diagnostics)),
	)
	diag.Log(ctx, r.res.Diagnostics)
	logger.Logger.InfoContext(ctx, "Pass finished",
		"changed", r.res.Changed,
		"diagnostics", len(r.res.Diagnostics))
	return r.res
}

// run is the working state of one invocation.
type run struct {
	pass *Pass
	m    *ir.Module
	loc  *locate.Locator
	res  Result
}

func (r *run) caller() string { return r.pass.opts.Caller }
func (r *run) callee() string { return r.pass.opts.Callee }
func (r *run) profile() Profile {
	return r.pass.profile
}

func (r *run) report(d ...diag.Diagnostic) {
	r.res.Diagnostics.Add(d...)
}
