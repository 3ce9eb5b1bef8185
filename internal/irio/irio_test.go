// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package irio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/rpcmerge/internal/diag"
	rmerrors "github.com/dotandev/rpcmerge/internal/errors"
)

const sample = `
define i32 @main() {
entry:
  ret i32 0
}

!llvm.ident = !{!0}
!0 = !{!"clang version 14.0.6"}
`

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.ll")
	out := filepath.Join(dir, "out.ll")
	require.NoError(t, os.WriteFile(in, []byte(sample), 0o644))

	m, diags, err := Read(in)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, m.Funcs, 1)

	require.NoError(t, Write(m, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "define i32 @main()")

	_, _, err = Read(out)
	require.NoError(t, err)
}

func TestReadMissingFile(t *testing.T) {
	_, _, err := Read(filepath.Join(t.TempDir(), "absent.ll"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, rmerrors.ErrParseIR))
}

func TestParseInvalid(t *testing.T) {
	_, _, err := Parse("bad.ll", "define i32 @main( {")
	require.Error(t, err)
	assert.True(t, errors.Is(err, rmerrors.ErrParseIR))
}

func TestProducerVersion(t *testing.T) {
	v, ok := ProducerVersion(sample)
	require.True(t, ok)
	assert.Equal(t, "14.0.6", v.String())

	_, ok = ProducerVersion("define void @f() {\nentry:\n  ret void\n}\n")
	assert.False(t, ok)
}

func TestCheckProducer(t *testing.T) {
	_, warn := CheckProducer(sample)
	assert.False(t, warn)

	d, warn := CheckProducer(`!0 = !{!"clang version 16.0.0 (https://github.com/llvm/llvm-project)"}`)
	require.True(t, warn)
	assert.Equal(t, diag.Note, d.Kind)
	assert.Contains(t, d.Message, "16.0.0")
}
