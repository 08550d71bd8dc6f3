package enrich

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds the per-record fetch attempts. Backoff is the fixed delay
// between attempts; the zero default retries immediately, which is
// aggressive toward the remote API. Operators can raise it via
// enrich.retry_backoff.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5}
}

// Wait blocks for the backoff interval or until the context finishes.
func (p Policy) Wait(ctx context.Context) error {
	if p.Backoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExhaustedError reports a record whose fetch attempts are spent. Attempts
// is the number actually made, which is below the bound when the context
// ended early. The record stays unprocessed and is retried on a future
// pipeline run.
type ExhaustedError struct {
	URL      string
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("enrichment of %s exhausted after %d attempts: %v", e.URL, e.Attempts, e.Last)
}

// Unwrap exposes the final attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
