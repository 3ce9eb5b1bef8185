// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package merge

import (
	"fmt"
	"strings"

	"github.com/dotandev/rpcmerge/internal/elide"
	"github.com/dotandev/rpcmerge/internal/errors"
)

// Profile captures the naming and operand conventions of one toolchain's
// RPC runtime.
type Profile struct {
	Name string

	// RPCName is the logical name of the RPC stub. With RPCPrefix set it
	// only has to prefix the logical name.
	RPCName   string
	RPCPrefix bool

	// NameOperand is the argument that carries the callee's name as a
	// string constant, or -1 when the stub does not identify its callee.
	NameOperand int

	// Positions selects the RPC arguments passed to the merged callee.
	Positions []int

	Marshalling elide.Names

	// Rename patterns, each formatted with the callee name. An empty
	// RuntimeStart means the toolchain has no separate runtime entry.
	RealCallee   string
	Entry        string
	RuntimeStart string
	MergedCallee string

	// Fallbacks used when no partition-specific function exists.
	DefaultCaller  string
	ExistingCallee string

	Payload elide.Payload
}

// GoProfile targets binaries built with the Go RPC runtime and cgo wrappers.
var GoProfile = Profile{
	Name:        "go",
	RPCName:     "main.make__rpc",
	NameOperand: -1,
	Positions:   []int{0, 3, 4},
	Marshalling: elide.Names{
		Receive: "main.get__arg__from__caller",
		Send:    "main.send__return__value__to__caller",
	},
	RealCallee:     "main_2nd_for_%s",
	Entry:          "main_for_%s",
	MergedCallee:   "NewCallee_%s",
	DefaultCaller:  "main.main",
	ExistingCallee: "main.wrapper__go2c",
	Payload:        elide.DefaultPayload,
}

// RustProfile targets binaries built against the OpenFaaSRPC crate.
var RustProfile = Profile{
	Name:        "rust",
	RPCName:     "OpenFaaSRPC::make_rpc",
	RPCPrefix:   true,
	NameOperand: 1,
	Positions:   []int{0, 3},
	Marshalling: elide.Names{
		Receive: "OpenFaaSRPC::get_arg_from_caller",
		Send:    "OpenFaaSRPC::send_return_value_to_caller",
	},
	RealCallee:   "callee_%s",
	Entry:        "main_callee_rust_%s",
	RuntimeStart: "_std_rt_lang_start_callee_%s",
	MergedCallee: "NewCallee_%s",
	Payload:      elide.DefaultPayload,
}

var profiles = map[string]Profile{
	GoProfile.Name:   GoProfile,
	RustProfile.Name: RustProfile,
}

// LookupProfile returns the profile registered under name.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, errors.WrapConfigError(fmt.Sprintf("unknown profile %q (expected go or rust)", name), nil)
	}
	return p, nil
}

// MatchesRPC reports whether a logical name denotes the RPC stub.
func (p Profile) MatchesRPC(logical string) bool {
	if p.RPCPrefix {
		return strings.HasPrefix(logical, p.RPCName)
	}
	return logical == p.RPCName
}

func (p Profile) realCalleeName(callee string) string   { return fmt.Sprintf(p.RealCallee, callee) }
func (p Profile) entryName(callee string) string        { return fmt.Sprintf(p.Entry, callee) }
func (p Profile) mergedCalleeName(callee string) string { return fmt.Sprintf(p.MergedCallee, callee) }

func (p Profile) runtimeStartName(callee string) string {
	if p.RuntimeStart == "" {
		return ""
	}
	return fmt.Sprintf(p.RuntimeStart, callee)
}
