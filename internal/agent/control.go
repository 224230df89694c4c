package agent

import (
	"context"
	"sync"
)

// Control is the cancellation token shared between the driver and whoever
// drives it (CLI signal handler, UI). Cancel takes effect within one
// fragment; Pause takes effect at the end of the current turn.
type Control struct {
	mu     sync.Mutex
	cancel *string
	pause  *string

	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewControl returns a token with no pending request.
func NewControl() *Control {
	ctx, cancel := context.WithCancel(context.Background())
	return &Control{ctx: ctx, cancelFn: cancel}
}

// Cancel requests an immediate stop. Only the first reason is kept.
func (c *Control) Cancel(reason string) {
	c.mu.Lock()
	if c.cancel == nil {
		c.cancel = &reason
	}
	c.mu.Unlock()
	c.cancelFn()
}

// Pause requests a stop at the next turn boundary.
func (c *Control) Pause(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pause == nil {
		c.pause = &reason
	}
}

// Resume withdraws a pending pause. A cancel cannot be withdrawn.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pause = nil
}

// Cancelled returns the cancel reason, if any.
func (c *Control) Cancelled() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return "", false
	}
	return *c.cancel, true
}

// Paused returns the pause reason, if any.
func (c *Control) Paused() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pause == nil {
		return "", false
	}
	return *c.pause, true
}

// Done is closed once Cancel has been called.
func (c *Control) Done() <-chan struct{} {
	return c.ctx.Done()
}

// bind returns a context cancelled when either parent or the token is.
func (c *Control) bind(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
