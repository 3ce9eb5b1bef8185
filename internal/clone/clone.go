// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package clone copies a function into a new function with a different
// parameter list.
package clone

import (
	"fmt"
	"reflect"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/dotandev/rpcmerge/internal/errors"
	"github.com/dotandev/rpcmerge/internal/irutil"
)

// WithSignature builds a detached function named name whose parameters
// have paramTypes and whose return type is the source's. The body is
// deep-copied with blocks, results and parameters remapped; source
// parameter i maps to new parameter i when both exist with equal types.
//
// A body that uses a source parameter without a counterpart is rejected
// and nothing is returned; debug metadata naming such a parameter gets
// undef instead. The result is not added to any module.
func WithSignature(source *ir.Func, paramTypes []types.Type, name string) (*ir.Func, error) {
	if source == nil {
		return nil, errors.WrapFunctionNotFound(name)
	}
	if len(source.Blocks) == 0 {
		return nil, errors.WrapStructural(fmt.Sprintf("'%s' is a declaration and has no body to clone", source.Name()))
	}

	params := make([]*ir.Param, len(paramTypes))
	for i, t := range paramTypes {
		pname := ""
		if i < len(source.Params) && types.Equal(source.Params[i].Typ, t) {
			pname = source.Params[i].LocalName
		}
		params[i] = ir.NewParam(pname, t)
	}

	fn := ir.NewFunc(name, source.Sig.RetType, params...)
	fn.Linkage = source.Linkage
	fn.Visibility = source.Visibility
	fn.CallingConv = source.CallingConv
	fn.FuncAttrs = append([]ir.FuncAttribute(nil), source.FuncAttrs...)
	fn.ReturnAttrs = append([]ir.ReturnAttribute(nil), source.ReturnAttrs...)
	fn.Section = source.Section
	fn.GC = source.GC
	fn.Personality = source.Personality
	fn.Metadata = append(ir.Metadata(nil), source.Metadata...)

	vmap := make(map[value.Value]value.Value)
	orphans := make(map[value.Value]bool)
	for i, p := range source.Params {
		if i < len(params) && types.Equal(p.Typ, params[i].Typ) {
			vmap[p] = params[i]
		} else {
			orphans[p] = true
		}
	}

	blocks := make([]*ir.Block, len(source.Blocks))
	for i, b := range source.Blocks {
		nb := ir.NewBlock(b.LocalName)
		nb.Parent = fn
		blocks[i] = nb
		vmap[b] = nb
	}

	for i, b := range source.Blocks {
		nb := blocks[i]
		nb.Insts = make([]ir.Instruction, len(b.Insts))
		for j, inst := range b.Insts {
			cp := irutil.Detach(inst)
			nb.Insts[j] = cp
			if v, ok := inst.(value.Value); ok {
				vmap[v] = cp.(value.Value)
			}
		}
		if b.Term != nil {
			cp := irutil.Detach(b.Term)
			nb.Term = cp
			if v, ok := b.Term.(value.Value); ok {
				vmap[v] = cp.(value.Value)
			}
		}
	}

	remap := func(user any) error {
		for _, s := range irutil.Operands(user) {
			old := s.Value()
			if old == nil || reflect.ValueOf(old).Kind() != reflect.Pointer {
				continue
			}
			if orphans[old] && s.InMetadata() {
				if err := s.Set(constant.NewUndef(old.Type())); err != nil {
					return errors.WrapStructural(err.Error())
				}
				continue
			}
			if orphans[old] {
				return errors.WrapStructural(fmt.Sprintf(
					"'%s' uses parameter %s which has no counterpart in the new signature",
					source.Name(), old.Ident()))
			}
			if nv, ok := vmap[old]; ok {
				if err := s.Set(nv); err != nil {
					return errors.WrapStructural(err.Error())
				}
			}
		}
		return nil
	}

	for _, nb := range blocks {
		for _, inst := range nb.Insts {
			if err := remap(inst); err != nil {
				return nil, err
			}
		}
		if nb.Term != nil {
			if err := remap(nb.Term); err != nil {
				return nil, err
			}
		}
	}

	fn.Blocks = blocks
	irutil.ResetIDs(fn)
	return fn, nil
}

// CopyCallAttributes copies attributes from the function called at an RPC
// site onto its local replacement: return attributes when the return types
// agree, and the attributes of each selected argument position.
func CopyCallAttributes(fn, target *ir.Func, positions []int) {
	if fn == nil || target == nil {
		return
	}
	if types.Equal(fn.Sig.RetType, target.Sig.RetType) {
		fn.ReturnAttrs = append([]ir.ReturnAttribute(nil), target.ReturnAttrs...)
	}
	for i, pos := range positions {
		if i >= len(fn.Params) || pos < 0 || pos >= len(target.Params) {
			continue
		}
		fn.Params[i].Attrs = append([]ir.ParamAttribute(nil), target.Params[pos].Attrs...)
	}
}

// DetachSubprogram removes fn's own !dbg attachment. A DISubprogram may
// describe only one function, so a clone drops it while its source lives.
func DetachSubprogram(fn *ir.Func) bool {
	for i, md := range fn.Metadata {
		if md.Name == "dbg" {
			fn.Metadata = append(fn.Metadata[:i:i], fn.Metadata[i+1:]...)
			return true
		}
	}
	return false
}
