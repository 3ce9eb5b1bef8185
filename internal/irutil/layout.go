// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package irutil

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// SizeOf returns the allocation size and ABI alignment of t under a
// 64-bit little-endian data layout. ok is false for unsized types.
func SizeOf(t types.Type) (size, align uint64, ok bool) {
	switch t := t.(type) {
	case *types.IntType:
		n := (t.BitSize + 7) / 8
		size = pow2(n)
		return size, min(size, 8), true
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindHalf:
			return 2, 2, true
		case types.FloatKindFloat:
			return 4, 4, true
		case types.FloatKindDouble:
			return 8, 8, true
		default:
			return 16, 16, true
		}
	case *types.PointerType:
		return 8, 8, true
	case *types.ArrayType:
		es, ea, ok := SizeOf(t.ElemType)
		if !ok {
			return 0, 0, false
		}
		return alignTo(es, ea) * t.Len, ea, true
	case *types.VectorType:
		es, _, ok := SizeOf(t.ElemType)
		if !ok {
			return 0, 0, false
		}
		size = pow2(es * t.Len)
		return size, min(size, 16), true
	case *types.StructType:
		if t.Opaque {
			return 0, 0, false
		}
		var off uint64
		maxAlign := uint64(1)
		for _, f := range t.Fields {
			fs, fa, ok := SizeOf(f)
			if !ok {
				return 0, 0, false
			}
			if t.Packed {
				fa = 1
			}
			off = alignTo(off, fa) + fs
			maxAlign = max(maxAlign, fa)
		}
		return alignTo(off, maxAlign), maxAlign, true
	}
	return 0, 0, false
}

func alignTo(n, a uint64) uint64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

func pow2(n uint64) uint64 {
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}

// PayloadType finds the type of the memory a buffer pointer designates.
// It follows bitcasts and GEPs back to an alloca; failing that, the first
// sized pointee other than i8 seen along the way is used.
func PayloadType(v value.Value) (types.Type, bool) {
	var fallback types.Type
	for i := 0; v != nil && i < 64; i++ {
		v = Unwrap(v)
		if fallback == nil {
			if pt, ok := v.Type().(*types.PointerType); ok && pt.ElemType != nil && !types.Equal(pt.ElemType, types.I8) {
				if _, _, ok := SizeOf(pt.ElemType); ok {
					fallback = pt.ElemType
				}
			}
		}
		switch x := v.(type) {
		case *ir.InstAlloca:
			t := x.ElemType
			if n, ok := x.NElems.(*constant.Int); ok && n.X.IsUint64() && n.X.Uint64() > 1 {
				t = types.NewArray(n.X.Uint64(), t)
			}
			return t, true
		case *ir.InstBitCast:
			v = x.From
		case *ir.InstGetElementPtr:
			v = x.Src
		case *constant.ExprBitCast:
			v = x.From
		case *constant.ExprGetElementPtr:
			v = x.Src
		default:
			return fallback, fallback != nil
		}
	}
	return fallback, fallback != nil
}
