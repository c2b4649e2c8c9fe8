package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	require.Equal(t, 10*time.Millisecond, p.backoff(1))
	require.Equal(t, 20*time.Millisecond, p.backoff(2))
	require.Equal(t, 160*time.Millisecond, p.backoff(5))
	require.Equal(t, 200*time.Millisecond, p.backoff(6))
	require.Equal(t, 200*time.Millisecond, p.backoff(20))
}

func TestRetryOnConflictSucceedsAfterConflicts(t *testing.T) {
	calls := 0
	conflicts := 0
	err := retryOnConflict(context.Background(), RetryPolicy{MaxAttempts: 3}, func(int, error) { conflicts++ }, func() error {
		calls++
		if calls < 3 {
			return domain.ErrConstraintViolation
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, 2, conflicts)
}

func TestRetryOnConflictExhausted(t *testing.T) {
	calls := 0
	err := retryOnConflict(context.Background(), RetryPolicy{MaxAttempts: 4}, nil, func() error {
		calls++
		return domain.ErrConstraintViolation
	})
	require.Equal(t, 4, calls)
	require.ErrorIs(t, err, domain.ErrSequenceContention)
	require.ErrorIs(t, err, domain.ErrConstraintViolation)
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := retryOnConflict(context.Background(), DefaultRetryPolicy(), nil, func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestRetryOnConflictHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	err := retryOnConflict(ctx, policy, func(int, error) { cancel() }, func() error {
		return domain.ErrConstraintViolation
	})
	require.ErrorIs(t, err, context.Canceled)
}
