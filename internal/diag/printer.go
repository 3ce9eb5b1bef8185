// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package diag

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/dotandev/rpcmerge/internal/logger"
)

// Printer writes diagnostics to a stream, coloured by kind when the stream
// is a terminal.
type Printer struct {
	w      io.Writer
	colors map[Kind]*color.Color
}

func NewPrinter(w io.Writer) *Printer {
	p := &Printer{
		w: w,
		colors: map[Kind]*color.Color{
			NotFound:              color.New(color.FgRed, color.Bold),
			MalformedPrecondition: color.New(color.FgRed),
			DependencyUnavailable: color.New(color.FgMagenta),
			Structural:            color.New(color.FgYellow),
			Note:                  color.New(color.FgCyan),
		},
	}
	p.SetColor(shouldColor(w))
	return p
}

func shouldColor(w io.Writer) bool {
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) SetColor(on bool) {
	for _, c := range p.colors {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func (p *Printer) Print(d Diagnostic) {
	label := "[" + d.Kind.String() + "]"
	if c, ok := p.colors[d.Kind]; ok {
		label = c.Sprint(label)
	}
	fmt.Fprintf(p.w, "%s %s\n", label, d.Message)
}

func (p *Printer) PrintAll(l List) {
	for _, d := range l {
		p.Print(d)
	}
}

// Log emits every diagnostic through the structured logger at the level of
// its kind.
func Log(ctx context.Context, l List, attrs ...any) {
	for _, d := range l {
		args := append([]any{"kind", d.Kind.String()}, attrs...)
		logger.Logger.Log(ctx, d.Kind.Level(), d.Message, args...)
	}
}
