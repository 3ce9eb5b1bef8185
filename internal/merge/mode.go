// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package merge

import (
	"fmt"

	"github.com/dotandev/rpcmerge/internal/errors"
)

// Mode selects the transformation a pass performs.
type Mode int

const (
	RenameCaller Mode = iota + 1
	RenameCallee
	MergeCallee
	MergeExistingCallee
	// ReplaceMakeRPC is MergeExistingCallee under the Go profile.
	ReplaceMakeRPC
)

var modeNames = map[Mode]string{
	RenameCaller:        "rename-caller",
	RenameCallee:        "rename-callee",
	MergeCallee:         "merge-callee",
	MergeExistingCallee: "merge-existing",
	ReplaceMakeRPC:      "replace-make-rpc",
}

// Modes lists every mode in flag order.
var Modes = []Mode{RenameCaller, RenameCallee, MergeCallee, MergeExistingCallee, ReplaceMakeRPC}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts the flag spelling of a mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	if s == "merge-existing-callee" {
		return MergeExistingCallee, nil
	}
	return 0, errors.WrapConfigError(fmt.Sprintf("unknown mode %q", s), nil)
}
