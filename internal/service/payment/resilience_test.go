package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Positive(t, cfg.InitialDelay)
	assert.Positive(t, cfg.MaxDelay)
	assert.Greater(t, cfg.BackoffFactor, 1.0)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}, quietLogger(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	for _, nonRetryable := range []error{ErrCircuitOpen, domain.ErrSessionNotFound, domain.ErrQuantityInvalid} {
		calls := 0
		err := retry(context.Background(), RetryConfig{MaxAttempts: 5}, quietLogger(), "op", func(context.Context) error {
			calls++
			return nonRetryable
		})
		assert.ErrorIs(t, err, nonRetryable)
		assert.Equal(t, 1, calls)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry(ctx, RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, quietLogger(), "op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("temporary")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := retry(context.Background(), RetryConfig{MaxAttempts: 2}, quietLogger(), "op", func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, calls)
}

func TestRetry_BackoffGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond, BackoffFactor: 2}
	b := cfg.policy(context.Background())
	b.Reset()

	var delays []time.Duration
	for d := b.NextBackOff(); d != -1; d = b.NextBackOff() {
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond, 25 * time.Millisecond}, delays)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(2, 20*time.Millisecond, quietLogger())
	failing := func() error { return errors.New("fail") }

	require.Error(t, cb.Execute("op", failing))
	assert.Equal(t, CircuitClosed, cb.State())
	require.Error(t, cb.Execute("op", failing))
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute("op", func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Execute("op", func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 20*time.Millisecond, quietLogger())

	require.Error(t, cb.Execute("op", func() error { return errors.New("fail") }))
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(40 * time.Millisecond)
	require.Error(t, cb.Execute("op", func() error { return errors.New("still failing") }))
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Execute("op", func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_IgnoresCallerCancellation(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, quietLogger())

	err := cb.Execute("op", func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
}
