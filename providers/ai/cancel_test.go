package ai

import (
	"context"
	"testing"
)

// TestCanceller_CancelAbortsContext verifies that Cancel aborts the context
// derived by Begin.
func TestCanceller_CancelAbortsContext(t *testing.T) {
	var canceller Canceller

	ctx := canceller.Begin(context.Background())
	if ctx.Err() != nil {
		t.Fatalf("fresh request context already cancelled: %v", ctx.Err())
	}

	canceller.Cancel()
	if ctx.Err() != context.Canceled {
		t.Errorf("after Cancel: got %v, want context.Canceled", ctx.Err())
	}

	// Idempotent.
	canceller.Cancel()
	canceller.Cancel()
}

// TestCanceller_CancelBeforeBegin verifies the cancel-then-send race:
// cancelling with nothing in flight makes the next Begin return an
// already-cancelled context instead of losing the cancellation.
func TestCanceller_CancelBeforeBegin(t *testing.T) {
	var canceller Canceller

	canceller.Cancel()
	ctx := canceller.Begin(context.Background())
	if ctx.Err() != context.Canceled {
		t.Errorf("pre-cancelled Begin: got %v, want context.Canceled", ctx.Err())
	}

	// The pre-cancel mark is consumed; a subsequent request starts clean.
	canceller.End()
	ctx = canceller.Begin(context.Background())
	if ctx.Err() != nil {
		t.Errorf("second Begin after End: got %v, want nil", ctx.Err())
	}
	canceller.End()
}

// TestCanceller_EndReleases verifies that End is safe to call repeatedly and
// that Cancel after End is a no-op for the finished request.
func TestCanceller_EndReleases(t *testing.T) {
	var canceller Canceller

	canceller.Begin(context.Background())
	canceller.End()
	canceller.End()

	// Cancel after End marks the canceller for the next request only.
	canceller.Cancel()
	ctx := canceller.Begin(context.Background())
	if ctx.Err() != context.Canceled {
		t.Errorf("Begin after late Cancel: got %v, want context.Canceled", ctx.Err())
	}
}
