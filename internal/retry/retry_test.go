package retry

import (
	"context"
	"errors"
	"testing"

	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCollision = errors.New("collision")

func isCollision(err error) bool { return errors.Is(err, errCollision) }

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), Policy{Attempts: 2, Retryable: isCollision}, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableFailures(t *testing.T) {
	calls := 0
	var retried []int

	v, err := Do(context.Background(), Policy{
		Attempts:  2,
		Retryable: isCollision,
		OnRetry:   func(attempt int, _ error) { retried = append(retried, attempt) },
	}, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errCollision
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, retried)
}

func TestDo_ExhaustionIsAllocationError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{Attempts: 2, Retryable: isCollision}, func(context.Context) (int, error) {
		calls++
		return 0, errCollision
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrAllocationFailed))
	assert.ErrorIs(t, err, errCollision)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	fatal := errors.New("disk gone")
	calls := 0

	_, err := Do(context.Background(), Policy{Attempts: 5, Retryable: isCollision}, func(context.Context) (int, error) {
		calls++
		return 0, fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.False(t, domainerrors.Is(err, domainerrors.ErrAllocationFailed))
	assert.Equal(t, 1, calls)
}

func TestDo_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, Policy{Attempts: 3}, func(context.Context) (int, error) {
		t.Fatal("fn must not run")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
