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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	assert.NotNil(t, ErrFunctionNotFound)
	assert.NotNil(t, ErrCallSiteNotFound)
	assert.NotNil(t, ErrMissingName)
	assert.NotNil(t, ErrDemanglerUnavailable)
	assert.NotNil(t, ErrStructural)
	assert.NotNil(t, ErrHasUses)
	assert.NotNil(t, ErrParseIR)
	assert.NotNil(t, ErrWriteIR)
	assert.NotNil(t, ErrConfig)
	assert.NotNil(t, ErrStore)
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("base error")

	wrappedErr := WrapFunctionNotFound("main")
	assert.True(t, errors.Is(wrappedErr, ErrFunctionNotFound))
	assert.Equal(t, "function not found: 'main'", wrappedErr.Error())

	wrappedErr = WrapCallSiteNotFound("main.main", "RPC")
	assert.True(t, errors.Is(wrappedErr, ErrCallSiteNotFound))
	assert.Contains(t, wrappedErr.Error(), "main.main")

	wrappedErr = WrapMissingName("caller")
	assert.True(t, errors.Is(wrappedErr, ErrMissingName))
	assert.Contains(t, wrappedErr.Error(), "caller name")

	wrappedErr = WrapDemanglerUnavailable(baseErr)
	assert.True(t, errors.Is(wrappedErr, ErrDemanglerUnavailable))
	assert.True(t, errors.Is(wrappedErr, baseErr))

	wrappedErr = WrapStructural("first argument is not a function")
	assert.True(t, errors.Is(wrappedErr, ErrStructural))

	wrappedErr = WrapHasUses("%rpc", 2)
	assert.True(t, errors.Is(wrappedErr, ErrHasUses))
	assert.Contains(t, wrappedErr.Error(), "2 operand(s)")

	wrappedErr = WrapParseIR("in.ll", baseErr)
	assert.True(t, errors.Is(wrappedErr, ErrParseIR))
	assert.True(t, errors.Is(wrappedErr, baseErr))

	wrappedErr = WrapWriteIR("out.ll", baseErr)
	assert.True(t, errors.Is(wrappedErr, ErrWriteIR))

	wrappedErr = WrapStoreError("open", baseErr)
	assert.True(t, errors.Is(wrappedErr, ErrStore))
	assert.True(t, errors.Is(wrappedErr, baseErr))
}

func TestWrapConfigError(t *testing.T) {
	err := WrapConfigError("invalid profile", nil)
	assert.True(t, errors.Is(err, ErrConfig))
	assert.Equal(t, "configuration error: invalid profile", err.Error())

	base := fmt.Errorf("permission denied")
	err = WrapConfigError("failed to read config file", base)
	assert.True(t, errors.Is(err, base))
}
