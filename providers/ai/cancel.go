package ai

import (
	"context"
	"sync"
)

// Canceller gives an adapter idempotent, cross-goroutine cancellation of its
// in-flight request. SendMessage derives its request context through Begin;
// Cancel may be called any number of times, from any goroutine, before or
// after the request finishes. Cancelling with nothing in flight marks the
// canceller so the next Begin returns an already-cancelled context, which
// keeps "cancel then send" race-free for callers that cancel from a second
// goroutine.
type Canceller struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool
}

// Begin derives the cancellable request context and registers its cancel
// function. It replaces any previously registered function, so each adapter
// owns at most one in-flight request at a time.
func (c *Canceller) Begin(ctx context.Context) context.Context {
	derived, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = cancel
	if c.cancelled {
		c.cancelled = false
		cancel()
	}
	return derived
}

// End releases the registered cancel function once the request has fully
// terminated. Safe to call multiple times.
func (c *Canceller) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.cancelled = false
}

// Cancel aborts the in-flight request. Idempotent.
func (c *Canceller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		return
	}
	c.cancelled = true
}
