// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package irutil

import (
	"fmt"
	"reflect"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/dotandev/rpcmerge/internal/errors"
)

// ReplaceCallSite puts the ordinary call nc where cs was. Every use of the
// old result is redirected to nc before the old site is removed.
//
// When the result types differ, debug metadata that referred to the old
// result is pointed at undef instead.
//
// An invoke is lowered to nc followed by an unconditional branch to the
// invoke's normal continuation. The branch is installed before the invoke
// goes away, and phi entries for the dropped unwind edge are removed.
func ReplaceCallSite(fn *ir.Func, cs CallSite, nc *ir.InstCall) error {
	old := cs.Value()
	if old == nil {
		return errors.WrapStructural("call site is empty")
	}
	if !types.Equal(old.Type(), nc.Type()) {
		if len(CodeUses(fn, old)) > 0 {
			return errors.WrapStructural(fmt.Sprintf(
				"replacement call returns %s but %s of type %s is still used",
				nc.Type(), old.Ident(), old.Type()))
		}
		if _, err := DropDebugUses(fn, old); err != nil {
			return err
		}
	} else {
		if cs.Exceptional() {
			nc.LocalIdent = cs.Invoke.LocalIdent
		} else {
			nc.LocalIdent = cs.Call.LocalIdent
		}
	}

	if !cs.Exceptional() {
		i := IndexOf(cs.Block, cs.Call)
		if i < 0 {
			return errors.WrapStructural("call is not in its recorded block")
		}
		InsertBefore(cs.Block, i, nc)
		if _, err := ReplaceAllUses(fn, old, nc); err != nil {
			cs.Block.Insts = append(cs.Block.Insts[:i:i], cs.Block.Insts[i+1:]...)
			return err
		}
		return EraseInstruction(fn, cs.Block, cs.Call)
	}

	normal := cs.Normal()
	if normal == nil {
		return errors.WrapStructural("invoke has no normal continuation block")
	}
	unwind := cs.Unwind()

	br := ir.NewBr(normal)
	cs.Block.Insts = append(cs.Block.Insts, nc)
	if _, err := ReplaceAllUses(fn, old, nc); err != nil {
		cs.Block.Insts = cs.Block.Insts[:len(cs.Block.Insts)-1]
		return err
	}
	if err := ReplaceTerminator(fn, cs.Block, br); err != nil {
		return err
	}
	if unwind != nil && unwind != normal {
		DropIncoming(unwind, cs.Block)
	}
	return nil
}

// DropIncoming removes the phi entries of b that arrive from pred and
// returns how many were dropped.
func DropIncoming(b *ir.Block, pred *ir.Block) int {
	n := 0
	for _, inst := range b.Insts {
		rv := reflect.ValueOf(inst)
		if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			continue
		}
		sv := rv.Elem()
		for i := 0; i < sv.NumField(); i++ {
			fv := sv.Field(i)
			if fv.Kind() != reflect.Slice || !fv.CanSet() || !isOwned(fv.Type().Elem()) {
				continue
			}
			pf, ok := fv.Type().Elem().Elem().FieldByName("Pred")
			if !ok {
				continue
			}
			kept := reflect.MakeSlice(fv.Type(), 0, fv.Len())
			for j := 0; j < fv.Len(); j++ {
				e := fv.Index(j)
				if !e.IsNil() {
					if p, ok := e.Elem().FieldByIndex(pf.Index).Interface().(value.Value); ok && Same(p, pred) {
						n++
						continue
					}
				}
				kept = reflect.Append(kept, e)
			}
			fv.Set(kept)
		}
	}
	return n
}
