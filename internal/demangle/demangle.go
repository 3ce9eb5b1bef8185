// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package demangle turns compiler-mangled symbol names into the
// namespace-qualified logical names the merge engine matches against.
package demangle

import (
	"context"
	"regexp"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// Demangler resolves one mangled symbol to its logical name. Implementations
// return the input unchanged when it is not a mangled name.
type Demangler interface {
	Demangle(ctx context.Context, symbol string) (string, error)
}

// Args and Reply are the wire types of the Demangler.Demangle JSON-RPC
// method served by the bridge daemon.
type Args struct {
	Symbol string `json:"symbol"`
}

type Reply struct {
	Name string `json:"name"`
}

// Matches the hash segment rustc appends to legacy-mangled paths.
var rustHashSuffix = regexp.MustCompile(`::h[0-9a-f]+$`)

// StripHash removes a trailing Rust hash segment such as ::h1a2b3c4d.
func StripHash(name string) string {
	return rustHashSuffix.ReplaceAllString(name, "")
}

// Symbol demangles an Itanium, legacy Rust or Rust v0 symbol in process.
// Names that are not mangled, and names the demangler rejects, come back
// as given.
func Symbol(symbol string) string {
	if symbol == "" {
		return symbol
	}
	if !looksMangled(symbol) {
		return symbol
	}
	out, err := demangle.ToString(symbol)
	if err != nil {
		return symbol
	}
	return StripHash(out)
}

func looksMangled(s string) bool {
	return strings.HasPrefix(s, "_Z") ||
		strings.HasPrefix(s, "__Z") ||
		strings.HasPrefix(s, "_R")
}

// Local is the in-process demangler. It never fails.
type Local struct{}

func (Local) Demangle(_ context.Context, symbol string) (string, error) {
	return Symbol(symbol), nil
}
