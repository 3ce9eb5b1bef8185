// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestSetLevelFiltersRecords(t *testing.T) {
	prev := Level()
	defer SetLevel(prev)

	var buf bytes.Buffer
	SetOutput(&buf, false)
	SetLevel(slog.LevelWarn)

	Logger.Info("hidden")
	Logger.Warn("shown", "fn", "main.main")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "fn=main.main")
}

func TestSetOutputJSON(t *testing.T) {
	prev := Level()
	defer SetLevel(prev)

	var buf bytes.Buffer
	SetOutput(&buf, true)
	SetLevel(slog.LevelInfo)

	Logger.Info("renamed", "count", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "renamed", rec["msg"])
	assert.Equal(t, float64(3), rec["count"])
	assert.Contains(t, rec, "source")
}

func TestWithRunAddsGroup(t *testing.T) {
	prev := Level()
	defer SetLevel(prev)

	var buf bytes.Buffer
	SetOutput(&buf, true)
	SetLevel(slog.LevelInfo)

	ctx := WithRun(context.Background(), "merge-callee", "default")
	Logger.InfoContext(ctx, "Pass finished", "changed", true)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	run, ok := rec["run"].(map[string]any)
	require.True(t, ok, "record has no run group: %s", buf.String())
	assert.Equal(t, "merge-callee", run["mode"])
	assert.Equal(t, "default", run["profile"])
	assert.Equal(t, true, rec["changed"])
}

func TestRecordsWithoutRunContextStayFlat(t *testing.T) {
	prev := Level()
	defer SetLevel(prev)

	var buf bytes.Buffer
	SetOutput(&buf, false)
	SetLevel(slog.LevelInfo)

	Logger.Info("plain")
	Logger.With("fn", "f").InfoContext(WithRun(context.Background(), "rename-caller", "p"), "tagged")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.NotContains(t, string(lines[0]), "run.")
	assert.Contains(t, string(lines[1]), "fn=f")
	assert.Contains(t, string(lines[1]), "run.mode=rename-caller")
	assert.Contains(t, string(lines[1]), "run.profile=p")
}

func TestWithRunReplacesOuterValues(t *testing.T) {
	ctx := WithRun(context.Background(), "a", "x")
	ctx = WithRun(ctx, "b", "y")
	attrs := RunAttrs(ctx)
	require.Len(t, attrs, 2)
	assert.Equal(t, "b", attrs[0].Value.String())
	assert.Equal(t, "y", attrs[1].Value.String())
	assert.Nil(t, RunAttrs(context.Background()))
}
