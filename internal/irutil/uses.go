// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package irutil

import (
	"fmt"
	"reflect"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/dotandev/rpcmerge/internal/errors"
)

// Use is one operand slot that references a value.
type Use struct {
	Block *ir.Block
	// User is the instruction or terminator holding the slot.
	User any
	Slot Slot
}

// Uses snapshots every operand slot of fn that references v.
func Uses(fn *ir.Func, v value.Value) []Use {
	var uses []Use
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			for _, s := range Operands(inst) {
				if Same(s.Value(), v) {
					uses = append(uses, Use{Block: b, User: inst, Slot: s})
				}
			}
		}
		if b.Term == nil {
			continue
		}
		for _, s := range Operands(b.Term) {
			if Same(s.Value(), v) {
				uses = append(uses, Use{Block: b, User: b.Term, Slot: s})
			}
		}
	}
	return uses
}

// CodeUses is Uses without the references held by debug metadata
// arguments.
func CodeUses(fn *ir.Func, v value.Value) []Use {
	var uses []Use
	for _, u := range Uses(fn, v) {
		if !u.Slot.InMetadata() {
			uses = append(uses, u)
		}
	}
	return uses
}

// DropDebugUses points every metadata reference to v at undef of v's
// type, so v can go away while llvm.dbg.* calls keep a valid operand.
func DropDebugUses(fn *ir.Func, v value.Value) (int, error) {
	n := 0
	for _, u := range Uses(fn, v) {
		if !u.Slot.InMetadata() {
			continue
		}
		if err := u.Slot.Set(constant.NewUndef(v.Type())); err != nil {
			return n, errors.WrapStructural(err.Error())
		}
		n++
	}
	return n, nil
}

// ReplaceAllUses redirects every use of old in fn to nv. The uses are
// collected before any slot is rewritten. When old is used, its type must
// match nv's.
func ReplaceAllUses(fn *ir.Func, old, nv value.Value) (int, error) {
	uses := Uses(fn, old)
	if len(uses) == 0 {
		return 0, nil
	}
	if !types.Equal(old.Type(), nv.Type()) {
		return 0, errors.WrapStructural(fmt.Sprintf(
			"cannot replace %s of type %s with value of type %s",
			old.Ident(), old.Type(), nv.Type()))
	}
	for _, u := range uses {
		if err := u.Slot.Set(nv); err != nil {
			return 0, errors.WrapStructural(err.Error())
		}
	}
	return len(uses), nil
}

// InsertBefore places insts in b ahead of position i.
func InsertBefore(b *ir.Block, i int, insts ...ir.Instruction) {
	out := make([]ir.Instruction, 0, len(b.Insts)+len(insts))
	out = append(out, b.Insts[:i]...)
	out = append(out, insts...)
	out = append(out, b.Insts[i:]...)
	b.Insts = out
}

// IndexOf returns the position of inst in b, or -1.
func IndexOf(b *ir.Block, inst ir.Instruction) int {
	for i, x := range b.Insts {
		if sameAny(x, inst) {
			return i
		}
	}
	return -1
}

// EraseInstruction unlinks inst from b. An instruction whose result is
// still used is refused with ErrHasUses.
func EraseInstruction(fn *ir.Func, b *ir.Block, inst ir.Instruction) error {
	if v, ok := inst.(value.Value); ok {
		if n := len(Uses(fn, v)); n > 0 {
			return errors.WrapHasUses(v.Ident(), n)
		}
	}
	i := IndexOf(b, inst)
	if i < 0 {
		return errors.WrapStructural("instruction is not in the given block")
	}
	b.Insts = append(b.Insts[:i:i], b.Insts[i+1:]...)
	return nil
}

// ReplaceTerminator installs term as b's terminator. The old terminator's
// result, if any, must be unused.
func ReplaceTerminator(fn *ir.Func, b *ir.Block, term ir.Terminator) error {
	if term == nil {
		return errors.WrapStructural("block would lose its terminator")
	}
	if v, ok := b.Term.(value.Value); ok {
		if n := len(Uses(fn, v)); n > 0 {
			return errors.WrapHasUses(v.Ident(), n)
		}
	}
	b.Term = term
	return nil
}

func sameAny(a, b any) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !ra.IsValid() || !rb.IsValid() || ra.Type() != rb.Type() || ra.Kind() != reflect.Pointer {
		return false
	}
	return ra.Pointer() == rb.Pointer()
}
