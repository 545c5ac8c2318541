// Package retry runs an operation a bounded number of times, retrying only
// failures the caller classifies as transient.
package retry

import (
	"context"
	"fmt"

	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
)

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Retryable classifies failures. Unclassified failures are returned immediately.
	Retryable Classifier
	// OnRetry, when set, is called before each repeated attempt.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. Exhaustion is reported as an AllocationExhausted error
// wrapping the last failure.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.Attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}

		lastErr = err
		if attempt < attempts && p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}

	return zero, domainerrors.AllocationExhausted(
		fmt.Sprintf("gave up after %d attempts, please try again", attempts),
	).WithCause(lastErr)
}
