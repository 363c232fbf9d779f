// Package analyze runs per-chunk analysis calls against an external text
// completion provider and collects typed results, one per chunk, in chunk
// order.
package analyze

import (
	"context"
	"errors"
	"fmt"
)

// CompleteRequest is a single blocking completion call.
type CompleteRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider executes completion calls. Implementations classify their own
// failures as TransientError or FatalError; unclassified errors are treated
// as not retryable. Name must identify backend and model so that cache keys
// change when either does.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompleteRequest) (string, error)
}

// TransientError is a failure worth retrying: rate limits, timeouts, server
// errors, and malformed or truncated payloads.
type TransientError struct {
	Status int
	Reason string
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient provider error (status %d): %s", e.Status, truncate(e.Reason, 200))
	}
	return fmt.Sprintf("transient provider error: %s", truncate(e.Reason, 200))
}

// FatalError is a failure retrying cannot fix: bad credentials, invalid
// request, unknown model.
type FatalError struct {
	Status int
	Reason string
}

func (e *FatalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.Status, truncate(e.Reason, 200))
	}
	return fmt.Sprintf("provider error: %s", truncate(e.Reason, 200))
}

// IsTransient reports whether an error should be retried. Deadline expiry
// counts: a timed-out call is a timeout no matter who reports it.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
