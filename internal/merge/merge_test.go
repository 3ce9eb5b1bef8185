// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package merge

import (
	"context"
	"strings"
	"testing"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/elide"
	"github.com/dotandev/rpcmerge/internal/irutil"
)

func parse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := asm.ParseString("test.ll", src)
	require.NoError(t, err)
	return m
}

func reparse(t *testing.T, m *ir.Module) {
	t.Helper()
	require.NoError(t, irutil.Renumber(m))
	_, err := asm.ParseString("out.ll", m.String())
	require.NoError(t, err)
}

func callsTo(fn *ir.Func, name string) []irutil.CallSite {
	var out []irutil.CallSite
	for _, cs := range irutil.CallSites(fn) {
		if f := cs.CalledFunc(); f != nil && f.Name() == name {
			out = append(out, cs)
		}
	}
	return out
}

func idents(vs []value.Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Ident()
	}
	return out
}

const goSrc = `
declare i32 @__gxx_personality_v0(...)
declare i8* @main.make__rpc(i8*, i8*, i64, i8*, i8*)

define i8* @main.wrapper__go2c(i8* %buf, i8* %a, i8* %b) {
entry:
  ret i8* %buf
}

define void @main.main(i8* %buf, i8* %name, i8* %x, i8* %y) personality i32 (...)* @__gxx_personality_v0 {
entry:
  %r = invoke i8* @main.make__rpc(i8* %buf, i8* %name, i64 7, i8* %x, i8* %y)
          to label %cont unwind label %lpad

cont:
  %v = load i8, i8* %r
  ret void

lpad:
  %lp = landingpad { i8*, i32 }
          cleanup
  resume { i8*, i32 } %lp
}
`

func TestReplaceMakeRPC(t *testing.T) {
	m := parse(t, goSrc)
	res := New(Options{Mode: ReplaceMakeRPC, Profile: RustProfile}).Run(context.Background(), m)

	require.True(t, res.Changed, res.Diagnostics.String())
	assert.False(t, res.Diagnostics.Blocking())
	assert.Equal(t, 1, res.Stats.CallSitesReplaced)

	mainFn := irutil.FindFunction(m, "main.main")
	assert.Empty(t, callsTo(mainFn, "main.make__rpc"))

	sites := callsTo(mainFn, "main.wrapper__go2c")
	require.Len(t, sites, 1)
	assert.False(t, sites[0].Exceptional())
	assert.Equal(t, []string{"%buf", "%x", "%y"}, idents(sites[0].Args()))

	entry := mainFn.Blocks[0]
	assert.Same(t, sites[0].Call, entry.Insts[len(entry.Insts)-1], "direct call ends the block")
	br, ok := entry.Term.(*ir.TermBr)
	require.True(t, ok)
	var target value.Value = br.Target
	assert.Equal(t, "cont", target.(*ir.Block).Name())

	load := mainFn.Blocks[1].Insts[0].(*ir.InstLoad)
	assert.Same(t, sites[0].Call, irutil.Unwrap(load.Src), "result uses follow the new call")

	reparse(t, m)
}

func TestMergeExistingRejectsSignatureMismatch(t *testing.T) {
	m := parse(t, strings.Replace(goSrc,
		"define i8* @main.wrapper__go2c(i8* %buf, i8* %a, i8* %b)",
		"define i8* @main.wrapper__go2c(i8* %buf, i8* %a)", 1))
	before := m.String()

	res := New(Options{Mode: MergeExistingCallee, Profile: GoProfile}).Run(context.Background(), m)
	assert.False(t, res.Changed)
	assert.True(t, res.Diagnostics.Has(diag.Structural))
	assert.Equal(t, before, m.String())
}

func TestMergeExistingWithoutTarget(t *testing.T) {
	m := parse(t, `
declare void @main.make__rpc(i8*, i8*, i64, i8*, i8*)

define void @main.main(i8* %p) {
entry:
  call void @main.make__rpc(i8* %p, i8* %p, i64 1, i8* %p, i8* %p)
  ret void
}
`)
	before := m.String()
	res := New(Options{Mode: ReplaceMakeRPC}).Run(context.Background(), m)
	assert.False(t, res.Changed)
	require.True(t, res.Diagnostics.Has(diag.NotFound))
	assert.Contains(t, res.Diagnostics.String(), "main.wrapper__go2c")
	assert.Equal(t, before, m.String())
}

func TestRenameCalleeWithoutMain(t *testing.T) {
	m := parse(t, `
define void @helper() {
entry:
  ret void
}
`)
	before := m.String()
	res := New(Options{Mode: RenameCallee, Callee: "backend", Profile: RustProfile}).Run(context.Background(), m)

	assert.False(t, res.Changed)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, diag.NotFound, res.Diagnostics[0].Kind)
	assert.Equal(t, "function 'main' not found", res.Diagnostics[0].Message)
	assert.Equal(t, before, m.String())
}

const rustEntrySrc = `
declare i64 @_ZN3std2rt10lang_start17h0123456789abcdefE(void ()*, i64, i8**)
declare void @llvm.donothing()

define void @helper() {
entry:
  call void @llvm.donothing()
  ret void
}

define void @_ZN7backend4main17h00000000000000b1E() {
entry:
  call void @helper()
  ret void
}

define i32 @main(i32 %argc, i8** %argv) {
entry:
  %n = sext i32 %argc to i64
  %r = call i64 @_ZN3std2rt10lang_start17h0123456789abcdefE(void ()* @_ZN7backend4main17h00000000000000b1E, i64 %n, i8** %argv)
  %rc = trunc i64 %r to i32
  ret i32 %rc
}
`

func TestRenameCaller(t *testing.T) {
	m := parse(t, rustEntrySrc)
	var before []string
	for _, f := range m.Funcs {
		before = append(before, f.Name())
	}

	res := New(Options{Mode: RenameCaller, Caller: "frontend", Profile: RustProfile}).Run(context.Background(), m)
	require.True(t, res.Changed)
	assert.Equal(t, 4, res.Stats.FunctionsRenamed)

	for i, f := range m.Funcs {
		if irutil.IsIntrinsic(before[i]) {
			assert.Equal(t, before[i], f.Name())
			continue
		}
		assert.Equal(t, before[i]+"_frontend", f.Name())
	}
	reparse(t, m)
}

func TestRenameCallerNeedsName(t *testing.T) {
	m := parse(t, rustEntrySrc)
	res := New(Options{Mode: RenameCaller, Profile: RustProfile}).Run(context.Background(), m)
	assert.False(t, res.Changed)
	require.True(t, res.Diagnostics.Has(diag.MalformedPrecondition))
	assert.Contains(t, res.Diagnostics.String(), "didn't specify caller name")
}

func TestRenameCalleeRust(t *testing.T) {
	m := parse(t, rustEntrySrc)
	res := New(Options{Mode: RenameCallee, Callee: "backend", Profile: RustProfile}).Run(context.Background(), m)
	require.True(t, res.Changed, res.Diagnostics.String())

	for _, name := range []string{
		"callee_backend",
		"main_callee_rust_backend",
		"_std_rt_lang_start_callee_backend",
		"helper_backend",
		"llvm.donothing",
	} {
		assert.NotNil(t, irutil.FindFunction(m, name), name)
	}
	assert.Nil(t, irutil.FindFunction(m, "main"))
	assert.Equal(t, 4, res.Stats.FunctionsRenamed)
	reparse(t, m)
}

func TestRenameCalleeGo(t *testing.T) {
	m := parse(t, `
declare void @__go_go(void ()*)

define void @main.main() {
entry:
  ret void
}

define i32 @main() {
entry:
  call void @__go_go(void ()* @main.main)
  ret i32 0
}
`)
	res := New(Options{Mode: RenameCallee, Callee: "svc", Profile: GoProfile}).Run(context.Background(), m)
	require.True(t, res.Changed)
	assert.NotNil(t, irutil.FindFunction(m, "main_for_svc"))
	assert.NotNil(t, irutil.FindFunction(m, "main_2nd_for_svc"))
	assert.NotNil(t, irutil.FindFunction(m, "__go_go_svc"))
}

func TestRenameCalleeCollision(t *testing.T) {
	m := parse(t, rustEntrySrc+`
define void @callee() {
entry:
  ret void
}
`)
	before := m.String()
	res := New(Options{Mode: RenameCallee, Callee: "backend", Profile: RustProfile}).Run(context.Background(), m)
	assert.False(t, res.Changed)
	assert.True(t, res.Diagnostics.Has(diag.Structural))
	assert.Equal(t, before, m.String())
}

// Caller half renamed with "frontend" and callee half renamed with
// "backend", linked into one module.
const rustMergeSrc = `
%Args = type { i64, i64, i64 }
%Ret = type { i64, i64, i64 }

@name.backend = private unnamed_addr constant <{ [7 x i8] }> <{ [7 x i8] c"backend" }>
@name.other = private unnamed_addr constant [5 x i8] c"other"

declare i32 @__gxx_personality_v0(...)
declare void @_ZN11OpenFaaSRPC8make_rpc17h0000000000000001E_frontend(%Ret*, i8*, i64, %Args*)
declare i64 @_ZN3std2rt10lang_start17h0123456789abcdefE_frontend(void ()*, i64, i8**)
declare void @_ZN11OpenFaaSRPC19get_arg_from_caller17h0000000000000002E_backend(i8*)
declare void @_ZN11OpenFaaSRPC27send_return_value_to_caller17h0000000000000003E_backend(i8*)

define void @_ZN8frontend4main17h00000000000000f1E_frontend() personality i32 (...)* @__gxx_personality_v0 {
entry:
  %ret = alloca %Ret
  %args = alloca %Args
  call void @_ZN11OpenFaaSRPC8make_rpc17h0000000000000001E_frontend(%Ret* %ret, i8* bitcast ([5 x i8]* @name.other to i8*), i64 5, %Args* %args)
  invoke void @_ZN11OpenFaaSRPC8make_rpc17h0000000000000001E_frontend(%Ret* %ret, i8* bitcast (<{ [7 x i8] }>* @name.backend to i8*), i64 7, %Args* %args)
          to label %cont unwind label %lpad

cont:
  ret void

lpad:
  %lp = landingpad { i8*, i32 }
          cleanup
  resume { i8*, i32 } %lp
}

define i32 @main_frontend(i32 %argc, i8** %argv) {
entry:
  %n = sext i32 %argc to i64
  %r = call i64 @_ZN3std2rt10lang_start17h0123456789abcdefE_frontend(void ()* @_ZN8frontend4main17h00000000000000f1E_frontend, i64 %n, i8** %argv)
  %rc = trunc i64 %r to i32
  ret i32 %rc
}

define void @callee_backend() personality i32 (...)* @__gxx_personality_v0 {
entry:
  %in = alloca %Args
  %in.raw = bitcast %Args* %in to i8*
  call void @_ZN11OpenFaaSRPC19get_arg_from_caller17h0000000000000002E_backend(i8* %in.raw)
  %out = alloca %Ret
  %out.raw = bitcast %Ret* %out to i8*
  invoke void @_ZN11OpenFaaSRPC27send_return_value_to_caller17h0000000000000003E_backend(i8* %out.raw)
          to label %done unwind label %lpad

done:
  ret void

lpad:
  %lp = landingpad { i8*, i32 }
          cleanup
  resume { i8*, i32 } %lp
}

define i64 @_std_rt_lang_start_callee_backend(void ()* %main, i64 %argc, i8** %argv) {
entry:
  call void %main()
  ret i64 0
}

define i32 @main_callee_rust_backend(i32 %argc, i8** %argv) {
entry:
  %n = sext i32 %argc to i64
  %r = call i64 @_std_rt_lang_start_callee_backend(void ()* @callee_backend, i64 %n, i8** %argv)
  %rc = trunc i64 %r to i32
  ret i32 %rc
}
`

const rustCaller = "_ZN8frontend4main17h00000000000000f1E_frontend"
const rustRPC = "_ZN11OpenFaaSRPC8make_rpc17h0000000000000001E_frontend"

func rustMerge() *Pass {
	return New(Options{Mode: MergeCallee, Caller: "frontend", Callee: "backend", Profile: RustProfile})
}

func TestMergeCalleeRust(t *testing.T) {
	m := parse(t, rustMergeSrc)
	res := rustMerge().Run(context.Background(), m)

	require.True(t, res.Changed, res.Diagnostics.String())
	assert.False(t, res.Diagnostics.Blocking(), res.Diagnostics.String())
	assert.Equal(t, Stats{
		FunctionsCloned:   1,
		FunctionsErased:   3,
		CallSitesReplaced: 1,
		MarshallingElided: 2,
	}, res.Stats)

	merged := irutil.FindFunction(m, "NewCallee_backend")
	require.NotNil(t, merged)
	require.Len(t, merged.Params, 2)
	assert.Equal(t, "%Ret*", merged.Params[0].Type().String())
	assert.Equal(t, "%Args*", merged.Params[1].Type().String())

	for _, gone := range []string{"callee_backend", "main_callee_rust_backend", "_std_rt_lang_start_callee_backend"} {
		assert.Nil(t, irutil.FindFunction(m, gone), gone)
	}

	caller := irutil.FindFunction(m, rustCaller)
	rpcs := callsTo(caller, rustRPC)
	require.Len(t, rpcs, 1, "the call naming another callee stays")
	name, ok := StringOperand(rpcs[0].Arg(1))
	require.True(t, ok)
	assert.Equal(t, "other", name)

	direct := callsTo(caller, "NewCallee_backend")
	require.Len(t, direct, 1)
	assert.Equal(t, []string{"%ret", "%args"}, idents(direct[0].Args()))
	_, isBr := caller.Blocks[0].Term.(*ir.TermBr)
	assert.True(t, isBr)

	assert.Empty(t, callsTo(merged, "_ZN11OpenFaaSRPC19get_arg_from_caller17h0000000000000002E_backend"))
	assert.Empty(t, callsTo(merged, "_ZN11OpenFaaSRPC27send_return_value_to_caller17h0000000000000003E_backend"))
	assert.Len(t, callsTo(merged, elide.MemcpyName), 2)

	reparse(t, m)
}

func TestMergeCalleeSecondRunIsNoop(t *testing.T) {
	m := parse(t, rustMergeSrc)
	require.True(t, rustMerge().Run(context.Background(), m).Changed)
	require.NoError(t, irutil.Renumber(m))
	after := m.String()

	res := rustMerge().Run(context.Background(), m)
	assert.False(t, res.Changed)
	assert.True(t, res.Diagnostics.Has(diag.NotFound))
	assert.Equal(t, after, m.String())
}

func TestMergeCalleeSameOnIdenticalCopies(t *testing.T) {
	a := parse(t, rustMergeSrc)
	b := parse(t, rustMergeSrc)
	ra := rustMerge().Run(context.Background(), a)
	rb := rustMerge().Run(context.Background(), b)

	assert.Equal(t, ra.Stats, rb.Stats)
	require.NoError(t, irutil.Renumber(a))
	require.NoError(t, irutil.Renumber(b))
	assert.Equal(t, a.String(), b.String())
}

func TestMergeCalleeNeedsNames(t *testing.T) {
	m := parse(t, rustMergeSrc)
	before := m.String()

	res := New(Options{Mode: MergeCallee, Callee: "backend", Profile: RustProfile}).Run(context.Background(), m)
	assert.False(t, res.Changed)
	assert.Contains(t, res.Diagnostics.String(), "didn't specify caller name")

	res = New(Options{Mode: MergeCallee, Caller: "frontend", Profile: RustProfile}).Run(context.Background(), m)
	assert.False(t, res.Changed)
	assert.Contains(t, res.Diagnostics.String(), "didn't specify callee name")
	assert.Equal(t, before, m.String())
}

func TestMergeCalleeUnknownCallee(t *testing.T) {
	m := parse(t, strings.ReplaceAll(rustMergeSrc, "callee_backend", "callee_elsewhere"))
	before := m.String()

	res := rustMerge().Run(context.Background(), m)
	assert.False(t, res.Changed)
	assert.Contains(t, res.Diagnostics.String(), "function 'callee_backend' not found")
	assert.Equal(t, before, m.String())
}

func TestStringOperand(t *testing.T) {
	m := parse(t, `
@packed = private constant <{ [3 x i8] }> <{ [3 x i8] c"a\22b" }>
@plain = private constant [4 x i8] c"svc\00"
`)
	s, ok := StringOperand(m.Globals[0])
	require.True(t, ok)
	assert.Equal(t, `a"b`, s)

	s, ok = StringOperand(m.Globals[1])
	require.True(t, ok)
	assert.Equal(t, "svc", s)

	_, ok = StringOperand(nil)
	assert.False(t, ok)
}

func TestParseModeAndProfile(t *testing.T) {
	for _, mode := range Modes {
		got, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}
	_, err := ParseMode("merge-everything")
	assert.Error(t, err)

	p, err := LookupProfile("Rust")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, p.Positions)
	_, err = LookupProfile("zig")
	assert.Error(t, err)

	assert.Equal(t, "main.wrapper__go2c", New(Options{Mode: ReplaceMakeRPC, Profile: RustProfile}).Profile().ExistingCallee)
}

func TestNoModeSelected(t *testing.T) {
	m := parse(t, goSrc)
	res := New(Options{}).Run(context.Background(), m)
	assert.False(t, res.Changed)
	assert.True(t, res.Diagnostics.Has(diag.MalformedPrecondition))
	assert.Contains(t, res.Summary(), "no changes")
}

const debugDecls = `
declare void @llvm.dbg.declare(metadata, metadata, metadata)
declare void @llvm.dbg.value(metadata, metadata, metadata)

!0 = !DIFile(filename: "lib.rs", directory: "/src")
!1 = !DILocalVariable(name: "v", scope: !2, file: !0, line: 3)
!2 = distinct !DISubprogram(name: "f", scope: !0, file: !0, line: 1)
`

// metadataArg returns the value wrapped in the first argument of the only
// call to name in fn.
func metadataArg(t *testing.T, fn *ir.Func, name string) value.Value {
	t.Helper()
	sites := callsTo(fn, name)
	require.Len(t, sites, 1)
	md, ok := sites[0].Call.Args[0].(*metadata.Value)
	require.True(t, ok)
	v, ok := md.Value.(value.Value)
	require.True(t, ok)
	return v
}

func TestReplaceMakeRPCRedirectsDebugValue(t *testing.T) {
	src := strings.Replace(goSrc,
		"  %v = load i8, i8* %r\n",
		"  call void @llvm.dbg.value(metadata i8* %r, metadata !1, metadata !DIExpression())\n  %v = load i8, i8* %r\n", 1)
	m := parse(t, src+debugDecls)
	mainFn := irutil.FindFunction(m, "main.main")
	rpc := callsTo(mainFn, "main.make__rpc")[0].Value()

	res := New(Options{Mode: ReplaceMakeRPC}).Run(context.Background(), m)
	require.True(t, res.Changed, res.Diagnostics.String())

	assert.Empty(t, irutil.Uses(mainFn, rpc), "erased RPC call is still referenced")
	direct := callsTo(mainFn, "main.wrapper__go2c")
	require.Len(t, direct, 1)
	assert.Same(t, direct[0].Call, metadataArg(t, mainFn, "llvm.dbg.value"))
	reparse(t, m)
}

func TestMergeCalleeWithInvokedReceiveAndDebugInfo(t *testing.T) {
	src := strings.Replace(rustMergeSrc,
		`  call void @_ZN11OpenFaaSRPC19get_arg_from_caller17h0000000000000002E_backend(i8* %in.raw)
  %out = alloca %Ret`,
		`  %0 = alloca i64
  call void @llvm.dbg.declare(metadata i64* %0, metadata !1, metadata !DIExpression())
  invoke void @_ZN11OpenFaaSRPC19get_arg_from_caller17h0000000000000002E_backend(i8* %in.raw)
          to label %next unwind label %lpad

next:
  %out = alloca %Ret`, 1)
	require.NotEqual(t, rustMergeSrc, src)
	m := parse(t, src+debugDecls)

	res := rustMerge().Run(context.Background(), m)
	require.True(t, res.Changed, res.Diagnostics.String())
	assert.False(t, res.Diagnostics.Blocking(), res.Diagnostics.String())
	assert.Equal(t, 2, res.Stats.MarshallingElided)

	merged := irutil.FindFunction(m, "NewCallee_backend")
	require.NotNil(t, merged)
	assert.Empty(t, callsTo(merged, "_ZN11OpenFaaSRPC19get_arg_from_caller17h0000000000000002E_backend"))
	assert.Empty(t, callsTo(merged, "_ZN11OpenFaaSRPC27send_return_value_to_caller17h0000000000000003E_backend"))
	assert.Len(t, callsTo(merged, elide.MemcpyName), 2)

	br, ok := merged.Blocks[0].Term.(*ir.TermBr)
	require.True(t, ok, "invoked receive becomes a branch")
	var target value.Value = br.Target
	assert.Equal(t, "next", target.(*ir.Block).Name())

	alloca := metadataArg(t, merged, "llvm.dbg.declare")
	inst, ok := alloca.(*ir.InstAlloca)
	require.True(t, ok)
	assert.Same(t, merged.Blocks[0], blockOf(merged, inst), "debug operand belongs to the clone")

	reparse(t, m)
	assert.Contains(t, merged.LLString(), "%2 = alloca i64")
	assert.Contains(t, merged.LLString(), "@llvm.dbg.declare(metadata i64* %2,")
}

func blockOf(fn *ir.Func, inst ir.Instruction) *ir.Block {
	for _, b := range fn.Blocks {
		for _, i := range b.Insts {
			if i == inst {
				return b
			}
		}
	}
	return nil
}


func TestMergeCalleeKeepsSubprogramOnSurvivingSource(t *testing.T) {
	src := strings.Replace(rustMergeSrc,
		"define void @callee_backend() personality i32 (...)* @__gxx_personality_v0 {",
		"define void @callee_backend() personality i32 (...)* @__gxx_personality_v0 !dbg !2 {", 1)
	src += "@keep = global void ()* @callee_backend\n"
	m := parse(t, src+debugDecls)

	res := rustMerge().Run(context.Background(), m)
	require.True(t, res.Changed, res.Diagnostics.String())

	source := irutil.FindFunction(m, "callee_backend")
	require.NotNil(t, source, "still referenced by @keep")
	require.Len(t, source.Metadata, 1)
	assert.Equal(t, "dbg", source.Metadata[0].Name)

	merged := irutil.FindFunction(m, "NewCallee_backend")
	require.NotNil(t, merged)
	for _, md := range merged.Metadata {
		assert.NotEqual(t, "dbg", md.Name)
	}
	assert.Contains(t, res.Diagnostics.String(), "keeps its debug subprogram")
	reparse(t, m)
}
