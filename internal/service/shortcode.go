package service

import (
	"context"
	"errors"
	"log/slog"

	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/id"
	"github.com/beaconapp/beacon-server/internal/metrics"
	"github.com/beaconapp/beacon-server/internal/retry"
	"github.com/beaconapp/beacon-server/internal/store"
)

// shortcodeAttempts bounds allocation: the first try plus one retry on collision.
const shortcodeAttempts = 2

// Shortcode kinds, also used as metric labels.
const (
	KindGroup  = "group"
	KindBeacon = "beacon"
)

// newShortcode is swapped in tests to force collisions.
var newShortcode = id.Shortcode

// allocate writes a document under a fresh shortcode. Only a collision on the
// shortcode index is retried; any other failure returns immediately. Running
// out of attempts yields ALLOCATION_EXHAUSTED with a shortcode_collision reason.
func allocate[T any](ctx context.Context, kind string, logger *slog.Logger, write func(ctx context.Context, code string) (T, error)) (T, error) {
	policy := retry.Policy{
		Attempts: shortcodeAttempts,
		Retryable: func(err error) bool {
			return store.IsIndexConflict(err, store.IndexShortcode)
		},
		OnRetry: func(attempt int, err error) {
			metrics.ShortcodeRetries.WithLabelValues(kind).Inc()
			logger.Warn("shortcode collision, retrying", "kind", kind, "attempt", attempt, "error", err)
		},
	}

	v, err := retry.Do(ctx, policy, func(ctx context.Context) (T, error) {
		var zero T
		code, err := newShortcode()
		if err != nil {
			return zero, err
		}
		return write(ctx, code)
	})

	var exhausted *domainerrors.Error
	if errors.As(err, &exhausted) && exhausted.Code == domainerrors.CodeAllocationFailed {
		return v, exhausted.WithDetails(map[string]any{"reason": domainerrors.ReasonShortcodeCollision})
	}
	return v, err
}
