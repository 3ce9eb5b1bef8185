// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package logger holds the process-wide structured logger. Records logged
// with a context from WithRun carry the pass mode and profile under a "run"
// group, so lines from one invocation can be told apart in shared output.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const runGroup = "run"

var (
	Logger *slog.Logger
	level  = new(slog.LevelVar)
	mu     sync.Mutex
)

func init() {
	configure(ParseLevel(os.Getenv("RPCMERGE_LOG_LEVEL")), os.Stderr, false)
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func configure(lvl slog.Level, w io.Writer, useJSON bool) {
	if w == nil {
		w = os.Stderr
	}
	level.Set(lvl)

	opts := &slog.HandlerOptions{Level: level, AddSource: true}
	var base slog.Handler = slog.NewTextHandler(w, opts)
	if useJSON {
		base = slog.NewJSONHandler(w, opts)
	}
	Logger = slog.New(&RunHandler{next: base})
}

func SetLevel(lvl slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(lvl)
}

func Level() slog.Level {
	return level.Level()
}

// SetOutput rebuilds Logger over w, keeping the current level.
func SetOutput(w io.Writer, useJSON bool) {
	mu.Lock()
	defer mu.Unlock()
	configure(level.Level(), w, useJSON)
}

type runKey struct{}

// WithRun returns a child of ctx that tags log records with the given pass
// mode and profile name. A nested call replaces the outer values.
func WithRun(ctx context.Context, mode, profile string) context.Context {
	return context.WithValue(ctx, runKey{}, []slog.Attr{
		slog.String("mode", mode),
		slog.String("profile", profile),
	})
}

// RunAttrs reports the attributes set by WithRun, or nil.
func RunAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(runKey{}).([]slog.Attr)
	return attrs
}

// RunHandler adds the run group from the record's context before passing
// the record on.
type RunHandler struct {
	next slog.Handler
}

func NewRunHandler(next slog.Handler) *RunHandler {
	return &RunHandler{next: next}
}

func (h *RunHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h *RunHandler) Handle(ctx context.Context, record slog.Record) error {
	if attrs := RunAttrs(ctx); len(attrs) > 0 {
		record = record.Clone()
		record.AddAttrs(slog.Attr{Key: runGroup, Value: slog.GroupValue(attrs...)})
	}
	return h.next.Handle(ctx, record)
}

func (h *RunHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RunHandler{next: h.next.WithAttrs(attrs)}
}

func (h *RunHandler) WithGroup(name string) slog.Handler {
	return &RunHandler{next: h.next.WithGroup(name)}
}
