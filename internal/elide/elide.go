// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package elide replaces the runtime calls a split callee uses to receive
// its arguments and send its result with plain memory copies against the
// buffers its merged caller passes in.
package elide

import (
	"context"
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/errors"
	"github.com/dotandev/rpcmerge/internal/irutil"
	"github.com/dotandev/rpcmerge/internal/locate"
	"github.com/dotandev/rpcmerge/internal/logger"
)

// MemcpyName is the intrinsic used for every copy.
const MemcpyName = "llvm.memcpy.p0i8.p0i8.i64"

var bytePtr = types.NewPointer(types.I8)

// Names are the logical names of the marshalling calls.
type Names struct {
	Receive string
	Send    string
}

// Payload is the wire layout assumed when a buffer's type cannot be traced.
type Payload struct {
	Size  uint64
	Align uint64
}

// DefaultPayload matches the layout both runtimes agree on.
var DefaultPayload = Payload{Size: 24, Align: 8}

// Plan holds the marshalling calls found in one function and the copy sizes
// derived for them. Nothing is edited until Apply.
type Plan struct {
	Func        *ir.Func
	Receive     irutil.CallSite
	Send        irutil.CallSite
	ReceiveSize uint64
	SendSize    uint64
}

// NewPlan locates the receive and send calls in fn, each as an invoke
// first and then as a plain call. A nil plan means elision must be skipped;
// the returned diagnostics say why.
func NewPlan(ctx context.Context, loc *locate.Locator, fn *ir.Func, names Names, def Payload) (*Plan, diag.List) {
	var diags diag.List
	if fn == nil || irutil.IsDeclaration(fn) {
		diags.Add(diag.Structuralf("no function body to elide marshalling from"))
		return nil, diags
	}
	if def.Size == 0 {
		def = DefaultPayload
	}

	p := &Plan{Func: fn}
	recv, ok := loc.FindCallSiteByDemangledName(ctx, fn, names.Receive, irutil.ExceptionalCall)
	if !ok {
		recv, ok = loc.FindCallSiteByDemangledName(ctx, fn, names.Receive, irutil.OrdinaryCall)
	}
	if ok {
		p.Receive = recv
	} else {
		diags.Add(diag.Notef("no call to '%s' in '%s'; arguments are not copied in", names.Receive, fn.Name()))
	}

	send, ok := loc.FindCallSiteByDemangledName(ctx, fn, names.Send, irutil.ExceptionalCall)
	if !ok {
		send, ok = loc.FindCallSiteByDemangledName(ctx, fn, names.Send, irutil.OrdinaryCall)
	}
	if !ok {
		diags.Add(diag.NotFoundf("cannot find the %s call in '%s'", names.Send, fn.Name()))
		return nil, diags
	}
	p.Send = send

	if len(fn.Params) < 2 {
		diags.Add(diag.Structuralf("'%s' takes %d parameters; the result and argument buffers are missing",
			fn.Name(), len(fn.Params)))
		return nil, diags
	}

	for _, c := range []struct {
		cs    irutil.CallSite
		param *ir.Param
		size  *uint64
	}{
		{p.Receive, fn.Params[1], &p.ReceiveSize},
		{p.Send, fn.Params[0], &p.SendSize},
	} {
		if !c.cs.Valid() {
			continue
		}
		name := c.cs.CalledFunc().Name()
		if !types.Equal(c.cs.ResultType(), types.Void) && len(irutil.CodeUses(fn, c.cs.Value())) > 0 {
			diags.Add(diag.Structuralf("result of the call to '%s' in '%s' is used", name, fn.Name()))
			return nil, diags
		}
		buf := c.cs.Arg(0)
		if buf == nil || !isPointer(buf.Type()) {
			diags.Add(diag.Structuralf("first argument of the call to '%s' is not a buffer pointer", name))
			return nil, diags
		}
		if !isPointer(c.param.Type()) {
			diags.Add(diag.Structuralf("parameter %s of '%s' is not a pointer", c.param.Ident(), fn.Name()))
			return nil, diags
		}
		*c.size = payloadSize(buf)
		if *c.size == 0 {
			*c.size = def.Size
			diags.Add(diag.Notef("payload type of %s in '%s' is unknown; copying %d bytes (%d-byte aligned)",
				buf.Ident(), fn.Name(), def.Size, def.Align))
		}
	}
	return p, diags
}

// Apply declares the memcpy intrinsic in m when needed and replaces each
// planned marshalling call with a copy. It returns the number of calls
// removed.
func (p *Plan) Apply(m *ir.Module) (int, error) {
	memcpy, err := DeclareMemcpy(m)
	if err != nil {
		return 0, err
	}

	n := 0
	if p.Receive.Valid() {
		dst := p.Receive.Arg(0)
		src := value.Value(p.Func.Params[1])
		if err := p.replace(memcpy, p.Receive, dst, src, p.ReceiveSize, "recv"); err != nil {
			return n, err
		}
		n++
	}

	dst := value.Value(p.Func.Params[0])
	src := p.Send.Arg(0)
	if err := p.replace(memcpy, p.Send, dst, src, p.SendSize, "send"); err != nil {
		return n, err
	}
	n++

	logger.Logger.Debug("Elided marshalling calls", "function", p.Func.Name(), "count", n)
	return n, nil
}

func (p *Plan) replace(memcpy *ir.Func, cs irutil.CallSite, dst, src value.Value, size uint64, tag string) error {
	var casts []ir.Instruction
	dst, casts = p.toBytePtr(dst, tag+".dst", casts)
	src, casts = p.toBytePtr(src, tag+".src", casts)

	if len(casts) > 0 {
		if cs.Exceptional() {
			cs.Block.Insts = append(cs.Block.Insts, casts...)
		} else {
			i := irutil.IndexOf(cs.Block, cs.Call)
			if i < 0 {
				return errors.WrapCallSiteNotFound(p.Func.Name(), cs.CalledFunc().Name())
			}
			irutil.InsertBefore(cs.Block, i, casts...)
		}
	}

	call := ir.NewCall(memcpy, dst, src, constant.NewInt(types.I64, int64(size)), constant.NewBool(false))
	if err := irutil.ReplaceCallSite(p.Func, cs, call); err != nil {
		return fmt.Errorf("eliding call to '%s': %w", cs.CalledFunc().Name(), err)
	}
	return nil
}

func (p *Plan) toBytePtr(v value.Value, name string, casts []ir.Instruction) (value.Value, []ir.Instruction) {
	if types.Equal(v.Type(), bytePtr) {
		return v, casts
	}
	if c, ok := v.(constant.Constant); ok {
		return constant.NewBitCast(c, bytePtr), casts
	}
	bc := ir.NewBitCast(v, bytePtr)
	bc.SetName(uniqueName(p.Func, name))
	return bc, append(casts, bc)
}

// DeclareMemcpy returns the memcpy intrinsic declared in m, adding it when
// absent. An existing function of that name with another signature is
// rejected.
func DeclareMemcpy(m *ir.Module) (*ir.Func, error) {
	want := types.NewFunc(types.Void, bytePtr, bytePtr, types.I64, types.I1)
	if f := irutil.FindFunction(m, MemcpyName); f != nil {
		if !types.Equal(f.Sig, want) {
			return nil, errors.WrapStructural(fmt.Sprintf(
				"'%s' is already declared with signature %s", MemcpyName, f.Sig))
		}
		return f, nil
	}
	return m.NewFunc(MemcpyName, types.Void,
		ir.NewParam("dst", bytePtr),
		ir.NewParam("src", bytePtr),
		ir.NewParam("len", types.I64),
		ir.NewParam("isvolatile", types.I1),
	), nil
}

func payloadSize(buf value.Value) uint64 {
	t, ok := irutil.PayloadType(buf)
	if !ok {
		return 0
	}
	size, _, ok := irutil.SizeOf(t)
	if !ok {
		return 0
	}
	return size
}

func isPointer(t types.Type) bool {
	_, ok := t.(*types.PointerType)
	return ok
}

func uniqueName(fn *ir.Func, base string) string {
	used := make(map[string]bool)
	for _, p := range fn.Params {
		used[p.LocalName] = true
	}
	for _, b := range fn.Blocks {
		used[b.LocalName] = true
		for _, inst := range b.Insts {
			if n, ok := inst.(interface{ Name() string }); ok {
				used[n.Name()] = true
			}
		}
	}
	name := base
	for i := 1; used[name]; i++ {
		name = fmt.Sprintf("%s.%d", base, i)
	}
	return name
}
