// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package irio reads and writes textual LLVM IR modules.
package irio

import (
	"io"
	"os"
	"regexp"

	"github.com/hashicorp/go-version"
	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"

	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/errors"
	"github.com/dotandev/rpcmerge/internal/irutil"
	"github.com/dotandev/rpcmerge/internal/logger"
)

// Stdio is the path that selects stdin or stdout.
const Stdio = "-"

// Producers from this release on emit opaque pointers by default.
var opaquePointerVersion = version.Must(version.NewVersion("15.0.0"))

var producerRe = regexp.MustCompile(`(?:clang|LLVM|llvm) version ([0-9]+(?:\.[0-9]+)*)`)

// Read parses the module at path. Findings about the input that do not
// prevent parsing are returned as diagnostics.
func Read(path string) (*ir.Module, diag.List, error) {
	var (
		data []byte
		err  error
	)
	if path == Stdio {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, errors.WrapParseIR(path, err)
	}
	return Parse(path, string(data))
}

// Parse parses LLVM IR text. name is used in error messages only.
func Parse(name, src string) (*ir.Module, diag.List, error) {
	var diags diag.List
	if d, ok := CheckProducer(src); ok {
		diags.Add(d)
	}

	m, err := asm.ParseString(name, src)
	if err != nil {
		return nil, diags, errors.WrapParseIR(name, err)
	}

	logger.Logger.Debug("Parsed module", "path", name, "functions", len(m.Funcs), "globals", len(m.Globals))
	return m, diags, nil
}

// ProducerVersion extracts the LLVM version named in the module's
// llvm.ident metadata.
func ProducerVersion(src string) (*version.Version, bool) {
	match := producerRe.FindStringSubmatch(src)
	if match == nil {
		return nil, false
	}
	v, err := version.NewVersion(match[1])
	if err != nil {
		return nil, false
	}
	return v, true
}

// CheckProducer warns about producers newer than the typed-pointer IR the
// rewriter emits.
func CheckProducer(src string) (diag.Diagnostic, bool) {
	v, ok := ProducerVersion(src)
	if !ok || v.LessThan(opaquePointerVersion) {
		return diag.Diagnostic{}, false
	}
	return diag.Notef(
		"module produced by LLVM %s; opaque pointers are not supported and inserted memcpy calls use typed i8* operands",
		v.Original()), true
}

// Format renders m as LLVM IR text, renumbering unnamed locals first.
func Format(m *ir.Module) (string, error) {
	if err := irutil.Renumber(m); err != nil {
		return "", errors.WrapWriteIR("module", err)
	}
	return m.String(), nil
}

// Write stores m at path.
func Write(m *ir.Module, path string) error {
	out, err := Format(m)
	if err != nil {
		return err
	}
	if path == Stdio {
		_, err = io.WriteString(os.Stdout, out)
	} else {
		err = os.WriteFile(path, []byte(out), 0644)
	}
	if err != nil {
		return errors.WrapWriteIR(path, err)
	}
	return nil
}
