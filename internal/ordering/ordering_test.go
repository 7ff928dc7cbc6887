package ordering

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFirstAppendPrepend(t *testing.T) {
	first := First()
	appended := Append(first)
	prepended := Prepend(first)
	require.Greater(t, appended, first)
	require.Less(t, prepended, first)
}

func TestBetweenSplitsMonotonically(t *testing.T) {
	lo, hi := 0.0, 100.0
	mid, ok := Between(lo, hi)
	require.True(t, ok)
	require.Greater(t, mid, lo)
	require.Less(t, mid, hi)
}

func TestBetweenFailsWhenExhausted(t *testing.T) {
	lo := 1.0
	hi := lo + 1e-12
	_, ok := Between(lo, hi)
	require.False(t, ok)
}

func TestRebalanceProducesAscendingRanks(t *testing.T) {
	ranks := Rebalance(5)
	require.Len(t, ranks, 5)
	for i := 1; i < len(ranks); i++ {
		require.Greater(t, ranks[i], ranks[i-1])
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultRetryPolicy(), nil, func(attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesRetryableErrorUntilSuccess(t *testing.T) {
	sentinel := errors.New("version conflict")
	calls := 0
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, Rand: rand.New(rand.NewSource(1))}

	err := Do(context.Background(), policy, func(error) bool { return true }, func(attempt int) error {
		calls++
		if calls < 3 {
			return sentinel
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	sentinel := errors.New("not found")
	calls := 0
	err := Do(context.Background(), DefaultRetryPolicy(), func(error) bool { return false }, func(attempt int) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, calls)
}

func TestDoExhaustsMaxAttempts(t *testing.T) {
	sentinel := errors.New("stuck")
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Rand: rand.New(rand.NewSource(1))}
	calls := 0
	err := Do(context.Background(), policy, func(error) bool { return true }, func(attempt int) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 3, calls)
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, DefaultRetryPolicy(), func(error) bool { return true }, func(attempt int) error {
		calls++
		return errors.New("boom")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, calls)
}
