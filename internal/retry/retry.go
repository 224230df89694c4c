// Package retry applies one retry policy around a fallible operation.
package retry

import (
	"context"
	"fmt"
	"time"

	"laserlens/internal/logging"
)

// Action is what the policy does after a failed attempt.
type Action int

const (
	// Fatal stops immediately and returns the error unchanged.
	Fatal Action = iota
	// Backoff retries after an exponentially growing delay.
	Backoff
	// Fixed retries after the policy's fixed delay.
	Fixed
)

func (a Action) String() string {
	switch a {
	case Fatal:
		return "fatal"
	case Backoff:
		return "backoff"
	case Fixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// Policy bounds retries of a single operation. Both retry kinds count
// against MaxRetries; only Backoff grows the delay.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	FixedDelay time.Duration

	// Classify maps a failure to an Action. Nil treats every error as Backoff.
	Classify func(error) Action

	// OnRetry, if set, is called before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError is returned when every allowed attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs fn until it succeeds, a Fatal error occurs, ctx is done, or
// MaxRetries retries have been spent. fn receives the 1-based attempt number.
func (p *Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	backoff := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		action := Backoff
		if p.Classify != nil {
			action = p.Classify(lastErr)
		}
		if action == Fatal {
			return lastErr
		}
		if attempt > p.MaxRetries {
			break
		}

		delay := backoff
		if action == Fixed {
			delay = p.FixedDelay
		} else {
			backoff *= 2
		}

		logging.Get(logging.CategoryAPI).Warn("attempt %d failed (%s), retrying in %v: %v", attempt, action, delay, lastErr)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}
		if err := p.sleepFn()(ctx, delay); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: p.MaxRetries + 1, Err: lastErr}
}

func (p *Policy) sleepFn() func(context.Context, time.Duration) error {
	if p.sleep != nil {
		return p.sleep
	}
	return sleepCtx
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
