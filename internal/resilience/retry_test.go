package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

var errBusy = NewTransientError(errors.New("verifier: HTTP 503: busy"), 503)

func TestDoVal_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastConfig(3), func(context.Context) (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesTransient(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastConfig(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errBusy
		}
		return "rows", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "rows", v)
	assert.Equal(t, 3, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastConfig(2), func(context.Context) (int, error) {
		calls++
		return 9, errBusy
	})
	require.ErrorIs(t, err, errBusy)
	assert.Zero(t, v)
	assert.Equal(t, 2, calls)
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return errors.New("job_not_found")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	cfg.OnRetry = func(int, error) { cancel() }

	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		return errBusy
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	calls := 0
	cfg := fastConfig(3)
	cfg.ShouldRetry = func(error) bool { return true }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_OnRetryAttempts(t *testing.T) {
	var attempts []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	_ = Do(context.Background(), cfg, func(context.Context) error { return errBusy })
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestApplyDefaults(t *testing.T) {
	cfg := applyDefaults(RetryConfig{JitterFraction: -1})
	def := DefaultRetryConfig()
	assert.Equal(t, def.MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, def.InitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, def.MaxBackoff, cfg.MaxBackoff)
	assert.Equal(t, def.Multiplier, cfg.Multiplier)
	assert.Zero(t, cfg.JitterFraction)
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(5, 200)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.InitialBackoff)

	assert.Equal(t, DefaultRetryConfig().MaxAttempts, FromSettings(0, 0).MaxAttempts)
}

func TestComputeBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, computeBackoff(1, cfg))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(2, cfg))
	assert.Equal(t, time.Second, computeBackoff(10, cfg))

	cfg.JitterFraction = 0.5
	for i := 0; i < 50; i++ {
		d := computeBackoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryLogger(t *testing.T) {
	fn := RetryLogger("verifier", "fetch_results")
	assert.NotPanics(t, func() { fn(1, errBusy) })
}
