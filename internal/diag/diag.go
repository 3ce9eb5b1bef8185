// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package diag carries the findings of a transformation run. Engine failures
// never surface as Go errors; they are collected here and shown to the user.
package diag

import (
	"fmt"
	"log/slog"
	"strings"
)

type Kind int

const (
	// NotFound means a symbol or call-site lookup came back empty.
	NotFound Kind = iota
	// MalformedPrecondition means a required mode parameter is missing.
	MalformedPrecondition
	// DependencyUnavailable means the demangling bridge could not answer.
	DependencyUnavailable
	// Structural means an operand or block had an unexpected shape.
	Structural
	// Note is informational and never blocks a transformation.
	Note
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case MalformedPrecondition:
		return "malformed-precondition"
	case DependencyUnavailable:
		return "dependency-unavailable"
	case Structural:
		return "structural"
	case Note:
		return "note"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Level is the log level a diagnostic of this kind is emitted at.
func (k Kind) Level() slog.Level {
	switch k {
	case Note:
		return slog.LevelInfo
	case DependencyUnavailable, Structural:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return d.Kind.String() + ": " + d.Message
}

func New(kind Kind, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) Diagnostic {
	return New(NotFound, format, args...)
}

func Preconditionf(format string, args ...any) Diagnostic {
	return New(MalformedPrecondition, format, args...)
}

func Unavailablef(format string, args ...any) Diagnostic {
	return New(DependencyUnavailable, format, args...)
}

func Structuralf(format string, args ...any) Diagnostic {
	return New(Structural, format, args...)
}

func Notef(format string, args ...any) Diagnostic {
	return New(Note, format, args...)
}

// List accumulates diagnostics in the order they were reported.
type List []Diagnostic

func (l *List) Add(d ...Diagnostic) {
	*l = append(*l, d...)
}

func (l List) Has(kind Kind) bool {
	for _, d := range l {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// Blocking reports whether any entry is more severe than a note.
func (l List) Blocking() bool {
	for _, d := range l {
		if d.Kind != Note {
			return true
		}
	}
	return false
}

func (l List) Messages() []string {
	out := make([]string, len(l))
	for i, d := range l {
		out[i] = d.Message
	}
	return out
}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, d := range l {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}
