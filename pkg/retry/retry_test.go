package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semblog/errors"
)

var errDown = stderrors.New("broker down")

func fast(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), func() error {
		calls++
		if calls < 3 {
			return errDown
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), func() error {
		calls++
		return errDown
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "non-retryable", err: NonRetryable(errDown)},
		{name: "invalid", err: errors.WrapInvalid(errDown, "Client", "Connect", "parse url")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fast(5), func() error {
				calls++
				return tt.err
			})
			assert.ErrorIs(t, err, errDown)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDo_TransientErrorsAreRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(2), func() error {
		calls++
		return errors.WrapTransient(errDown, "Client", "Connect", "dial")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ForeverUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	var retried []int

	policy := Forever(time.Millisecond, 2*time.Millisecond)
	policy.OnRetry = func(attempt int, err error, next time.Duration) {
		retried = append(retried, attempt)
		assert.ErrorIs(t, err, errDown)
		assert.GreaterOrEqual(t, next, time.Millisecond)
	}

	err := Do(ctx, policy, func() error {
		calls++
		if calls == 10 {
			cancel()
		}
		return errDown
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, calls)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, retried)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	cfg := fast(5)
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	start := time.Now()
	err := Do(ctx, cfg, func() error { return errDown })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDo_BackoffIsCapped(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   3,
		OnRetry: func(_ int, _ error, next time.Duration) {
			delays = append(delays, next)
		},
	}

	_ = Do(context.Background(), cfg, func() error { return errDown })
	assert.Equal(t, []time.Duration{
		time.Millisecond, 3 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond,
	}, delays)
}

func TestDo_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "negative delay", cfg: Config{InitialDelay: -time.Second}},
		{name: "max below initial", cfg: Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			err := Do(context.Background(), tt.cfg, func() error {
				called = true
				return nil
			})
			assert.True(t, errors.IsInvalid(err))
			assert.False(t, called)
		})
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{}, func() error {
		calls++
		return errDown
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fast(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errDown
		}
		return "connected", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "connected", got)
}

func TestPresets(t *testing.T) {
	def := DefaultConfig()
	assert.Equal(t, 3, def.MaxAttempts)
	assert.True(t, def.AddJitter)

	forever := Forever(time.Second, time.Minute)
	assert.Negative(t, forever.MaxAttempts)
	assert.Equal(t, time.Second, forever.InitialDelay)
	assert.Equal(t, time.Minute, forever.MaxDelay)
}
