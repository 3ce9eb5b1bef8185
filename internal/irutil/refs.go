// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package irutil

import (
	"reflect"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/value"
)

const constantPkgPath = "github.com/llir/llvm/ir/constant"

// References reports whether v is target or is a constant expression that
// mentions target, at any depth.
func References(v value.Value, target value.Value) bool {
	return references(Unwrap(v), target, map[uintptr]bool{})
}

func references(v value.Value, target value.Value, seen map[uintptr]bool) bool {
	if v == nil {
		return false
	}
	if Same(v, target) {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return false
	}
	if rv.Elem().Type().PkgPath() != constantPkgPath {
		return false
	}
	if seen[rv.Pointer()] {
		return false
	}
	seen[rv.Pointer()] = true

	found := false
	walkConstant(rv.Elem(), func(inner value.Value) {
		if !found && references(inner, target, seen) {
			found = true
		}
	})
	return found
}

func walkConstant(sv reflect.Value, visit func(value.Value)) {
	for i := 0; i < sv.NumField(); i++ {
		fv := sv.Field(i)
		if !sv.Type().Field(i).IsExported() {
			continue
		}
		walkConstantField(fv, visit)
	}
}

func walkConstantField(fv reflect.Value, visit func(value.Value)) {
	switch fv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if fv.IsNil() {
			return
		}
		if v, ok := fv.Interface().(value.Value); ok {
			visit(v)
		}
	case reflect.Slice:
		if k := fv.Type().Elem().Kind(); k != reflect.Interface && k != reflect.Pointer {
			return
		}
		for j := 0; j < fv.Len(); j++ {
			walkConstantField(fv.Index(j), visit)
		}
	}
}

// FuncRefs counts the places outside f itself that reference f: operands
// of instructions in other functions (including inside constant
// expressions), global initializers, the personality of other functions
// and module metadata tuples.
func FuncRefs(m *ir.Module, f *ir.Func) int {
	n := 0
	for _, g := range m.Funcs {
		if g == f {
			continue
		}
		if g.Personality != nil && References(g.Personality, f) {
			n++
		}
		for _, b := range g.Blocks {
			for _, inst := range b.Insts {
				n += countRefs(inst, f)
			}
			if b.Term != nil {
				n += countRefs(b.Term, f)
			}
		}
	}
	for _, gv := range m.Globals {
		if gv.Init != nil && References(gv.Init, f) {
			n++
		}
	}
	seen := make(map[*metadata.Tuple]bool)
	for _, md := range m.MetadataDefs {
		if t, ok := md.(*metadata.Tuple); ok {
			n += tupleRefs(t, f, seen)
		}
	}
	return n
}

func tupleRefs(t *metadata.Tuple, f *ir.Func, seen map[*metadata.Tuple]bool) int {
	if seen[t] {
		return 0
	}
	seen[t] = true
	n := 0
	for _, field := range t.Fields {
		switch field := field.(type) {
		case *metadata.Tuple:
			n += tupleRefs(field, f, seen)
		case *metadata.Value:
			if v, ok := field.Value.(value.Value); ok && References(v, f) {
				n++
			}
		case value.Value:
			if References(field, f) {
				n++
			}
		}
	}
	return n
}

func countRefs(user any, f *ir.Func) int {
	n := 0
	for _, s := range Operands(user) {
		if References(s.Value(), f) {
			n++
		}
	}
	return n
}

// RemoveFunction drops f from the module when nothing else references it.
func RemoveFunction(m *ir.Module, f *ir.Func) bool {
	if FuncRefs(m, f) > 0 {
		return false
	}
	for i, g := range m.Funcs {
		if g == f {
			m.Funcs = append(m.Funcs[:i:i], m.Funcs[i+1:]...)
			return true
		}
	}
	return false
}
