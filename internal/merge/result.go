// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package merge

import (
	"fmt"

	"github.com/dotandev/rpcmerge/internal/diag"
)

// Stats counts the edits made by one run.
type Stats struct {
	FunctionsRenamed  int `json:"functions_renamed"`
	FunctionsCloned   int `json:"functions_cloned"`
	FunctionsErased   int `json:"functions_erased"`
	CallSitesReplaced int `json:"call_sites_replaced"`
	MarshallingElided int `json:"marshalling_elided"`
}

// Map flattens the counters for storage.
func (s Stats) Map() map[string]int {
	return map[string]int{
		"functions_renamed":   s.FunctionsRenamed,
		"functions_cloned":    s.FunctionsCloned,
		"functions_erased":    s.FunctionsErased,
		"call_sites_replaced": s.CallSitesReplaced,
		"marshalling_elided":  s.MarshallingElided,
	}
}

// Result is what a pass reports to its host. A run never fails; problems
// show up as diagnostics and Changed stays false when nothing was edited.
type Result struct {
	Mode        Mode
	Changed     bool
	Diagnostics diag.List
	Stats       Stats
}

// Summary is a one-line description of the run.
func (r Result) Summary() string {
	if !r.Changed {
		return fmt.Sprintf("%s: no changes (%d diagnostics)", r.Mode, len(r.Diagnostics))
	}
	s := r.Stats
	return fmt.Sprintf("%s: renamed %d, cloned %d, erased %d functions; replaced %d call sites; elided %d marshalling calls",
		r.Mode, s.FunctionsRenamed, s.FunctionsCloned, s.FunctionsErased, s.CallSitesReplaced, s.MarshallingElided)
}
