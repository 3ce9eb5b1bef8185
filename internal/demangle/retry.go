// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package demangle

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dotandev/rpcmerge/internal/errors"
	"github.com/dotandev/rpcmerge/internal/logger"
)

// RetryPolicy bounds how often an external bridge is asked before the
// caller gives up and falls back to the raw name.
type RetryPolicy struct {
	MaxRetries uint64
	Interval   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		Interval:   500 * time.Millisecond,
	}
}

// do runs op with a fixed interval between attempts. Exhaustion and
// cancellation are reported as ErrDemanglerUnavailable.
func (p RetryPolicy) do(ctx context.Context, what string, op func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), p.MaxRetries),
		ctx,
	)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return op()
	}, b, func(err error, wait time.Duration) {
		logger.Logger.Debug("Demangling bridge failed, will retry",
			"bridge", what,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		return errors.WrapDemanglerUnavailable(err)
	}
	return nil
}
