package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStale = errors.New("stale")

func TestDo(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), cfg, func() error {
			calls++
			if calls < 3 {
				return errStale
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("wraps last error when attempts run out", func(t *testing.T) {
		err := Do(context.Background(), cfg, func() error { return errStale })

		require.Error(t, err)
		assert.ErrorIs(t, err, errStale)
	})
}

func TestDo_Retryable(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := ConflictConfig(func(err error) bool { return errors.Is(err, errStale) })

	t.Run("stops on non-retryable error", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), cfg, func() error {
			calls++
			return permanent
		})

		assert.Equal(t, permanent, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("returns retryable error unwrapped after last attempt", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), cfg, func() error {
			calls++
			return errStale
		})

		assert.Equal(t, errStale, err)
		assert.Equal(t, 3, calls)
	})
}

func TestDoWithLog_LogsBetweenAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 2}
	var logged []int

	err := DoWithLog(context.Background(), cfg, "PostgreSQL", func() error { return errStale },
		func(attempt int, err error, nextDelay time.Duration) { logged = append(logged, attempt) })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PostgreSQL: max retry attempts (2) exceeded")
	assert.Equal(t, []int{1}, logged)
}
