// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package irutil

import "github.com/llir/llvm/ir"

type localID interface {
	IsUnnamed() bool
	SetID(id int64)
}

// ResetIDs clears the numeric IDs of unnamed parameters, blocks and
// results so that ir.Func.AssignIDs can number them again after edits.
func ResetIDs(f *ir.Func) {
	reset := func(x any) {
		if l, ok := x.(localID); ok && l.IsUnnamed() {
			l.SetID(0)
		}
	}
	for _, p := range f.Params {
		reset(p)
	}
	for _, b := range f.Blocks {
		reset(b)
		for _, inst := range b.Insts {
			reset(inst)
		}
		if b.Term != nil {
			reset(b.Term)
		}
	}
}

// Renumber resets and reassigns local IDs of every defined function.
func Renumber(m *ir.Module) error {
	for _, f := range m.Funcs {
		if len(f.Blocks) == 0 {
			continue
		}
		ResetIDs(f)
		if err := f.AssignIDs(); err != nil {
			return err
		}
	}
	return nil
}
