// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package irutil

import (
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// CallKind restricts which call sites a lookup accepts.
type CallKind int

const (
	AnyCall CallKind = iota
	OrdinaryCall
	ExceptionalCall
)

func (k CallKind) String() string {
	switch k {
	case OrdinaryCall:
		return "call"
	case ExceptionalCall:
		return "invoke"
	default:
		return "call or invoke"
	}
}

// CallSite is either an ordinary call inside a block or an invoke
// terminating it.
type CallSite struct {
	Block *ir.Block
	// Index is the position in Block.Insts, or -1 for an invoke.
	Index  int
	Call   *ir.InstCall
	Invoke *ir.TermInvoke
}

func (c CallSite) Valid() bool {
	return c.Call != nil || c.Invoke != nil
}

func (c CallSite) Exceptional() bool {
	return c.Invoke != nil
}

func (c CallSite) Kind() CallKind {
	if c.Exceptional() {
		return ExceptionalCall
	}
	return OrdinaryCall
}

func (c CallSite) Accepts(kind CallKind) bool {
	return kind == AnyCall || kind == c.Kind()
}

// Value is the call site's result.
func (c CallSite) Value() value.Value {
	if c.Invoke != nil {
		return c.Invoke
	}
	return c.Call
}

func (c CallSite) Callee() value.Value {
	if c.Invoke != nil {
		return c.Invoke.Invokee
	}
	if c.Call != nil {
		return c.Call.Callee
	}
	return nil
}

// Args returns the call arguments with attribute wrappers removed.
func (c CallSite) Args() []value.Value {
	var raw []value.Value
	switch {
	case c.Invoke != nil:
		raw = c.Invoke.Args
	case c.Call != nil:
		raw = c.Call.Args
	}
	out := make([]value.Value, len(raw))
	for i, a := range raw {
		out[i] = Unwrap(a)
	}
	return out
}

// Arg returns argument i, or nil when out of range.
func (c CallSite) Arg(i int) value.Value {
	args := c.Args()
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

// CalledFunc resolves the callee to a function, looking through constant
// casts. Indirect calls return nil.
func (c CallSite) CalledFunc() *ir.Func {
	f, _ := StripCasts(c.Callee()).(*ir.Func)
	return f
}

// Normal is the continuation taken when an invoke returns.
func (c CallSite) Normal() *ir.Block {
	if c.Invoke == nil {
		return nil
	}
	var target value.Value = c.Invoke.NormalRetTarget
	b, _ := target.(*ir.Block)
	return b
}

// Unwind is the landing block of an invoke.
func (c CallSite) Unwind() *ir.Block {
	if c.Invoke == nil {
		return nil
	}
	var target value.Value = c.Invoke.ExceptionRetTarget
	b, _ := target.(*ir.Block)
	return b
}

// ResultType is the type produced by the call.
func (c CallSite) ResultType() types.Type {
	if v := c.Value(); v != nil {
		return v.Type()
	}
	return nil
}

// CallSites lists every call site of fn in block-then-instruction order.
// An invoke comes after the block's instructions.
func CallSites(fn *ir.Func) []CallSite {
	var sites []CallSite
	for _, b := range fn.Blocks {
		for i, inst := range b.Insts {
			if call, ok := inst.(*ir.InstCall); ok {
				sites = append(sites, CallSite{Block: b, Index: i, Call: call})
			}
		}
		if inv, ok := b.Term.(*ir.TermInvoke); ok {
			sites = append(sites, CallSite{Block: b, Index: -1, Invoke: inv})
		}
	}
	return sites
}

// StripCasts looks through bitcast instructions and constant bitcast
// expressions.
func StripCasts(v value.Value) value.Value {
	for {
		switch x := Unwrap(v).(type) {
		case *constant.ExprBitCast:
			v = x.From
		case *ir.InstBitCast:
			v = x.From
		default:
			return x
		}
	}
}

// IsIntrinsic reports whether name is reserved for LLVM intrinsics.
func IsIntrinsic(name string) bool {
	return strings.HasPrefix(name, "llvm.")
}

func FindFunction(m *ir.Module, name string) *ir.Func {
	for _, f := range m.Funcs {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

func IsDeclaration(f *ir.Func) bool {
	return len(f.Blocks) == 0
}
