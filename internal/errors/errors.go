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

package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is
var (
	ErrFunctionNotFound     = errors.New("function not found")
	ErrCallSiteNotFound     = errors.New("call site not found")
	ErrMissingName          = errors.New("required name not specified")
	ErrDemanglerUnavailable = errors.New("demangling bridge unavailable")
	ErrStructural           = errors.New("unexpected IR structure")
	ErrHasUses              = errors.New("value still has uses")
	ErrParseIR              = errors.New("failed to parse IR")
	ErrWriteIR              = errors.New("failed to write IR")
	ErrConfig               = errors.New("configuration error")
	ErrStore                = errors.New("store error")
)

// Wrap functions for consistent error wrapping
func WrapFunctionNotFound(name string) error {
	return fmt.Errorf("%w: '%s'", ErrFunctionNotFound, name)
}

func WrapCallSiteNotFound(where, what string) error {
	return fmt.Errorf("%w: no %s call in '%s'", ErrCallSiteNotFound, what, where)
}

func WrapMissingName(which string) error {
	return fmt.Errorf("%w: didn't specify %s name", ErrMissingName, which)
}

func WrapDemanglerUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrDemanglerUnavailable, err)
}

func WrapStructural(msg string) error {
	return fmt.Errorf("%w: %s", ErrStructural, msg)
}

func WrapHasUses(name string, n int) error {
	return fmt.Errorf("%w: %s is referenced by %d operand(s)", ErrHasUses, name, n)
}

func WrapParseIR(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrParseIR, path, err)
}

func WrapWriteIR(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrWriteIR, path, err)
}

func WrapConfigError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrConfig, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrConfig, msg, err)
}

func WrapStoreError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrStore, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, msg, err)
}
