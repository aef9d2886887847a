// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package tools

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds a remote call: each attempt gets its own timeout and
// attempts are separated by Delay, which may be zero.
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration
	Delay    time.Duration
}

// OnRetry observes a failed attempt (1-based).
type OnRetry func(attempt int, err error)

func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, observe OnRetry) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var errs []error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		attemptCtx := ctx
		cancel := func() {}
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", i, err))
		if observe != nil {
			observe(i, err)
		}

		if i < attempts && p.Delay > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(append(errs, ctx.Err())...)
			case <-time.After(p.Delay):
			}
		}
	}
	return errors.Join(errs...)
}
