// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package irutil

import (
	"testing"

	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeOf(t *testing.T) {
	tests := []struct {
		name  string
		typ   types.Type
		size  uint64
		align uint64
	}{
		{"i1", types.I1, 1, 1},
		{"i32", types.I32, 4, 4},
		{"i64", types.I64, 8, 8},
		{"double", types.Double, 8, 8},
		{"pointer", types.NewPointer(types.I8), 8, 8},
		{"array", types.NewArray(3, types.I64), 24, 8},
		{"padded struct", types.NewStruct(types.I8, types.I64), 16, 8},
		{"three words", types.NewStruct(types.I64, types.I64, types.I64), 24, 8},
		{"tail padding", types.NewStruct(types.I64, types.I32), 16, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, align, ok := SizeOf(tt.typ)
			require.True(t, ok)
			assert.Equal(t, tt.size, size)
			assert.Equal(t, tt.align, align)
		})
	}
}

func TestSizeOfPackedAndUnsized(t *testing.T) {
	packed := types.NewStruct(types.I8, types.I64)
	packed.Packed = true
	size, align, ok := SizeOf(packed)
	require.True(t, ok)
	assert.Equal(t, uint64(9), size)
	assert.Equal(t, uint64(1), align)

	opaque := &types.StructType{Opaque: true}
	_, _, ok = SizeOf(opaque)
	assert.False(t, ok)

	_, _, ok = SizeOf(types.Void)
	assert.False(t, ok)
}

func TestPayloadType(t *testing.T) {
	m := parse(t, `
%Payload = type { i64, i64, i64 }

define void @h(i8* %opaque, %Payload* %typed) {
entry:
  %buf = alloca %Payload
  %raw = bitcast %Payload* %buf to i8*
  %field = getelementptr %Payload, %Payload* %buf, i64 0, i32 1
  ret void
}
`)
	f := mustFunc(t, m, "h")

	for _, name := range []string{"raw", "field", "buf"} {
		_, inst := findInst(t, f, name)
		typ, ok := PayloadType(inst.(value.Value))
		require.True(t, ok, name)
		size, _, _ := SizeOf(typ)
		assert.Equal(t, uint64(24), size, name)
	}

	_, ok := PayloadType(f.Params[0])
	assert.False(t, ok, "bare i8* has no recoverable payload")

	typ, ok := PayloadType(f.Params[1])
	require.True(t, ok)
	size, _, _ := SizeOf(typ)
	assert.Equal(t, uint64(24), size)
}
