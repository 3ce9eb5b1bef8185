// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package merge

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/value"

	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/irutil"
	"github.com/dotandev/rpcmerge/internal/locate"
)

// rpcSite is a resolved RPC stub call together with the function holding it.
type rpcSite struct {
	Caller *ir.Func
	Site   irutil.CallSite
}

// Args returns the call's arguments at the profile's positions.
func (s rpcSite) Args(positions []int) ([]value.Value, bool) {
	all := s.Site.Args()
	out := make([]value.Value, 0, len(positions))
	for _, pos := range positions {
		if pos < 0 || pos >= len(all) {
			return nil, false
		}
		out = append(out, all[pos])
	}
	return out, true
}

// callerCandidates lists, in resolution order, the functions that may hold
// the RPC call: the merged caller, the real entry behind the renamed
// caller's main, then the profile's default caller.
func (r *run) callerCandidates() []*ir.Func {
	var out []*ir.Func
	seen := map[*ir.Func]bool{}
	add := func(f *ir.Func) {
		if f != nil && !irutil.IsDeclaration(f) && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	prof := r.profile()
	if c := r.caller(); c != "" {
		add(irutil.FindFunction(r.m, prof.mergedCalleeName(c)))
		if entry := irutil.FindFunction(r.m, "main_"+c); entry != nil {
			if boot, ok, _ := locate.FindBootstrapCall(entry); ok {
				add(boot.Target)
			}
		}
	}
	if prof.DefaultCaller != "" {
		add(irutil.FindFunction(r.m, prof.DefaultCaller))
		if c := r.caller(); c != "" {
			add(irutil.FindFunction(r.m, prof.DefaultCaller+"_"+c))
		}
	}
	return out
}

// findRPC resolves the RPC call site targeting callee. The first candidate
// caller holding a matching site wins.
func (r *run) findRPC(ctx context.Context) (rpcSite, bool) {
	candidates := r.callerCandidates()
	if len(candidates) == 0 {
		r.report(diag.NotFoundf("caller function not found (tried %s)", strings.Join(r.callerNames(), ", ")))
		return rpcSite{}, false
	}
	prof := r.profile()
	for _, fn := range candidates {
		cs, ok := r.loc.Match(ctx, fn, irutil.AnyCall, func(cs irutil.CallSite, logical string) bool {
			if !prof.MatchesRPC(logical) {
				return false
			}
			if prof.NameOperand < 0 {
				return true
			}
			name, ok := StringOperand(cs.Arg(prof.NameOperand))
			return ok && name == r.callee()
		})
		if ok {
			return rpcSite{Caller: fn, Site: cs}, true
		}
	}
	names := make([]string, len(candidates))
	for i, fn := range candidates {
		names[i] = "'" + fn.Name() + "'"
	}
	what := prof.RPCName
	if prof.NameOperand >= 0 {
		what += " for '" + r.callee() + "'"
	}
	r.report(diag.NotFoundf("no %s call site in %s", what, strings.Join(names, ", ")))
	return rpcSite{}, false
}

func (r *run) callerNames() []string {
	prof := r.profile()
	var names []string
	if c := r.caller(); c != "" {
		names = append(names, "'"+prof.mergedCalleeName(c)+"'", "entry of 'main_"+c+"'")
	}
	if prof.DefaultCaller != "" {
		names = append(names, "'"+prof.DefaultCaller+"'")
	}
	return names
}

var charArrayPattern = regexp.MustCompile(`c"([^"]*)"`)

// StringOperand extracts the string constant an RPC argument points at,
// looking through casts and GEPs to the global holding the bytes.
func StringOperand(v value.Value) (string, bool) {
	g := findGlobal(irutil.Unwrap(v), 0)
	if g == nil || g.Init == nil {
		return "", false
	}
	if ca, ok := g.Init.(*constant.CharArray); ok {
		return strings.TrimSuffix(string(ca.X), "\x00"), true
	}
	m := charArrayPattern.FindStringSubmatch(g.Init.String())
	if m == nil {
		return "", false
	}
	return strings.TrimSuffix(unescape(m[1]), "\x00"), true
}

func findGlobal(v value.Value, depth int) *ir.Global {
	if v == nil || depth > 16 {
		return nil
	}
	switch x := v.(type) {
	case *ir.Global:
		return x
	case *constant.ExprBitCast:
		return findGlobal(x.From, depth+1)
	case *constant.ExprGetElementPtr:
		return findGlobal(x.Src, depth+1)
	case *constant.ExprPtrToInt:
		return findGlobal(x.From, depth+1)
	case *ir.InstBitCast:
		return findGlobal(x.From, depth+1)
	case *ir.InstGetElementPtr:
		return findGlobal(x.Src, depth+1)
	}
	return nil
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+2 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
