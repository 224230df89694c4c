// Package ratelimit spaces outbound generation requests.
package ratelimit

import (
	"context"
	"time"
)

// Limiter enforces a minimum interval between consecutive Wait returns.
// It is meant for a single caller (the loop driver) and holds no lock.
type Limiter struct {
	interval time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a limiter allowing rpm requests per minute. rpm <= 0 disables
// spacing entirely.
func New(rpm int) *Limiter {
	var interval time.Duration
	if rpm > 0 {
		interval = time.Minute / time.Duration(rpm)
	}
	return &Limiter{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Interval returns the enforced spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until at least Interval has elapsed since the previous Wait
// returned. The first call never blocks. It returns early with ctx.Err() if
// the context is cancelled while sleeping; the timestamp is not advanced then.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.last.IsZero() && l.interval > 0 {
		if remaining := l.interval - l.now().Sub(l.last); remaining > 0 {
			if err := l.sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}
	l.last = l.now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
