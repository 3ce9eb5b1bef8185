// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package irutil

import (
	"fmt"
	"reflect"

	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/value"
)

const irPkgPath = "github.com/llir/llvm/ir"

var (
	valueType   = reflect.TypeOf((*value.Value)(nil)).Elem()
	mdValueType = reflect.TypeOf((*metadata.Value)(nil))
	mdArgsType  = reflect.TypeOf((*metadata.DIArgList)(nil))
)

// Slot is one operand position of an instruction or terminator. Slots are
// addressable, so Set rewrites the owner in place.
type Slot struct {
	v reflect.Value
	// meta marks a value referenced from a metadata argument, as in
	// llvm.dbg.value and llvm.dbg.declare.
	meta bool
}

// InMetadata reports whether the slot sits inside a metadata argument.
func (s Slot) InMetadata() bool {
	return s.meta
}

func (s Slot) Value() value.Value {
	if s.v.Kind() == reflect.Interface && s.v.IsNil() {
		return nil
	}
	if s.v.Kind() == reflect.Pointer && s.v.IsNil() {
		return nil
	}
	v, _ := s.v.Interface().(value.Value)
	return v
}

// Set stores nv in the slot. The slot's static type must accept nv.
func (s Slot) Set(nv value.Value) error {
	rv := reflect.ValueOf(nv)
	if !rv.IsValid() || !rv.Type().AssignableTo(s.v.Type()) {
		return fmt.Errorf("operand slot of type %s cannot hold %T", s.v.Type(), nv)
	}
	s.v.Set(rv)
	return nil
}

// Operands lists the operand slots of an instruction or terminator in
// field order. Operands nested inside owned helper structs (phi incomings,
// switch cases, argument wrappers) and values wrapped as metadata
// arguments are included; constant expressions are treated as opaque
// values.
func Operands(x any) []Slot {
	var slots []Slot
	rv := reflect.ValueOf(x)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil
	}
	walkStruct(rv.Elem(), false, false, func(s Slot) { slots = append(slots, s) })
	return slots
}

// Detach returns a shallow copy of an instruction or terminator whose
// slices and owned helper structs are private to the copy, so rewriting
// the copy's operands leaves x untouched.
func Detach[T any](x T) T {
	rv := reflect.ValueOf(x)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return x
	}
	cp := reflect.New(rv.Elem().Type())
	cp.Elem().Set(rv.Elem())
	walkStruct(cp.Elem(), true, false, func(Slot) {})
	return cp.Interface().(T)
}

func walkStruct(sv reflect.Value, copyOwned, meta bool, visit func(Slot)) {
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		fv := sv.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Anonymous && !sf.Type.Implements(valueType) && sf.Type != valueType {
			// LocalIdent and friends. Embedded slices are copied so the
			// copy does not alias attachment lists.
			if copyOwned && fv.Kind() == reflect.Slice {
				copySlice(fv)
			}
			continue
		}
		walkField(fv, copyOwned, meta, visit)
	}
}

func walkField(fv reflect.Value, copyOwned, meta bool, visit func(Slot)) {
	switch fv.Kind() {
	case reflect.Interface:
		if fv.IsNil() {
			return
		}
		elem := fv.Elem()
		if isMetadataOperand(elem.Type()) {
			if elem.IsNil() {
				return
			}
			if copyOwned {
				cp := reflect.New(elem.Type().Elem())
				cp.Elem().Set(elem.Elem())
				fv.Set(cp)
				elem = cp
			}
			walkStruct(elem.Elem(), copyOwned, true, visit)
			return
		}
		if isWrapper(elem.Type()) {
			if copyOwned {
				cp := reflect.New(elem.Type().Elem())
				cp.Elem().Set(elem.Elem())
				fv.Set(cp)
				elem = cp
			}
			walkStruct(elem.Elem(), copyOwned, meta, visit)
			return
		}
		if elem.Type().Implements(valueType) {
			visit(Slot{v: fv, meta: meta})
		}
	case reflect.Pointer:
		if fv.IsNil() {
			return
		}
		if isMetadataOperand(fv.Type()) {
			if copyOwned {
				cp := reflect.New(fv.Type().Elem())
				cp.Elem().Set(fv.Elem())
				fv.Set(cp)
			}
			walkStruct(fv.Elem(), copyOwned, true, visit)
			return
		}
		if fv.Type().Implements(valueType) {
			if isWrapper(fv.Type()) {
				if copyOwned {
					cp := reflect.New(fv.Type().Elem())
					cp.Elem().Set(fv.Elem())
					fv.Set(cp)
				}
				walkStruct(fv.Elem(), copyOwned, meta, visit)
				return
			}
			visit(Slot{v: fv, meta: meta})
			return
		}
		if isOwned(fv.Type()) {
			if copyOwned {
				cp := reflect.New(fv.Type().Elem())
				cp.Elem().Set(fv.Elem())
				fv.Set(cp)
			}
			walkStruct(fv.Elem(), copyOwned, meta, visit)
		}
	case reflect.Slice:
		if fv.IsNil() {
			return
		}
		if copyOwned {
			copySlice(fv)
		}
		for j := 0; j < fv.Len(); j++ {
			walkField(fv.Index(j), copyOwned, meta, visit)
		}
	}
}

func copySlice(fv reflect.Value) {
	if fv.IsNil() {
		return
	}
	cp := reflect.MakeSlice(fv.Type(), fv.Len(), fv.Len())
	reflect.Copy(cp, fv)
	fv.Set(cp)
}

// isMetadataOperand reports whether t wraps values as a metadata argument:
// a metadata value or a DIArgList.
func isMetadataOperand(t reflect.Type) bool {
	return t == mdValueType || t == mdArgsType
}

// isOwned reports whether t points to a helper struct of the ir package
// that is not itself a value, such as a phi incoming or a switch case.
func isOwned(t reflect.Type) bool {
	return t.Kind() == reflect.Pointer &&
		t.Elem().Kind() == reflect.Struct &&
		t.Elem().PkgPath() == irPkgPath &&
		!t.Implements(valueType)
}

// isWrapper reports whether t points to a struct that decorates a value by
// embedding it as its first field, such as a call argument with attributes.
func isWrapper(t reflect.Type) bool {
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return false
	}
	st := t.Elem()
	if st.NumField() == 0 {
		return false
	}
	f := st.Field(0)
	return f.Anonymous && f.Type == valueType
}

// Unwrap strips argument wrappers and returns the underlying value.
func Unwrap(v value.Value) value.Value {
	for v != nil {
		rv := reflect.ValueOf(v)
		if !isWrapper(rv.Type()) || rv.IsNil() {
			return v
		}
		inner := rv.Elem().Field(0)
		if inner.IsNil() {
			return v
		}
		v = inner.Interface().(value.Value)
	}
	return v
}

// Same reports whether a and b are the same IR value.
func Same(a, b value.Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	if ra.Kind() == reflect.Pointer {
		return ra.Pointer() == rb.Pointer()
	}
	return false
}
