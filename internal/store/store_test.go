// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/rpcmerge/internal/demangle"
)

var _ demangle.Cache = (*Store)(nil)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDemangledCache(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, ok, err := s.Lookup(ctx, "_ZN3foo3barE")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "_ZN3foo3barE", "foo::bar"))
	require.NoError(t, s.Save(ctx, "_ZN3foo3barE", "foo::bar2"))

	name, ok, err := s.Lookup(ctx, "_ZN3foo3barE")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "foo::bar2", name)
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	first := &Run{
		Mode:        "rename-caller",
		Profile:     "go",
		Input:       "in.ll",
		Output:      "out.ll",
		Caller:      "frontend",
		Changed:     true,
		Stats:       map[string]int{"functions_renamed": 4},
		Diagnostics: nil,
	}
	require.NoError(t, s.RecordRun(ctx, first))
	assert.NotZero(t, first.ID)

	second := &Run{
		Mode:        "merge-callee",
		Profile:     "rust",
		Input:       "in.ll",
		Output:      "-",
		Caller:      "frontend",
		Callee:      "backend",
		Diagnostics: []string{"not-found: function 'main' not found"},
	}
	require.NoError(t, s.RecordRun(ctx, second))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.Equal(t, "merge-callee", runs[0].Mode)
	assert.False(t, runs[0].Changed)
	assert.Equal(t, []string{"not-found: function 'main' not found"}, runs[0].Diagnostics)
	assert.Equal(t, "backend", runs[0].Callee)

	assert.True(t, runs[1].Changed)
	assert.Equal(t, 4, runs[1].Stats["functions_renamed"])
	assert.WithinDuration(t, first.CreatedAt, runs[1].CreatedAt, 0)
}

func TestCleanupKeepsNewest(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordRun(ctx, &Run{Mode: "rename-caller", Profile: "go", Input: "a", Output: "b"}))
	}
	require.NoError(t, s.Cleanup(ctx, 2))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
