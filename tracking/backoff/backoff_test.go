//go:build unit

package backoff

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     time.Duration
		attempt  int
		expected time.Duration
	}{
		{name: "attempt 0 returns base", base: 100 * time.Millisecond, attempt: 0, expected: 100 * time.Millisecond},
		{name: "attempt 3 is 8x base", base: 100 * time.Millisecond, attempt: 3, expected: 800 * time.Millisecond},
		{name: "negative attempt treated as 0", base: 100 * time.Millisecond, attempt: -5, expected: 100 * time.Millisecond},
		{name: "zero base", base: 0, attempt: 3, expected: 0},
		{name: "overflow clamps", base: time.Hour, attempt: 100, expected: time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, Exponential(tt.base, tt.attempt))
		})
	}
}

func TestCapped_Sequence(t *testing.T) {
	t.Parallel()

	expected := []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
	}

	for attempt, want := range expected {
		assert.Equal(t, want, Capped(500*time.Millisecond, 2, attempt, 5*time.Second), "attempt %d", attempt)
	}
}

func TestCapped_EdgeCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		initial  time.Duration
		factor   float64
		attempt  int
		maxDelay time.Duration
		expected time.Duration
	}{
		{name: "zero initial", initial: 0, factor: 2, attempt: 3, maxDelay: time.Second, expected: 0},
		{name: "factor below one is constant", initial: time.Second, factor: 0.5, attempt: 4, maxDelay: time.Minute, expected: time.Second},
		{name: "negative attempt", initial: time.Second, factor: 2, attempt: -1, maxDelay: time.Minute, expected: time.Second},
		{name: "fractional factor", initial: time.Second, factor: 1.5, attempt: 2, maxDelay: time.Minute, expected: 2250 * time.Millisecond},
		{name: "no cap", initial: time.Second, factor: 3, attempt: 3, maxDelay: 0, expected: 27 * time.Second},
		{name: "huge attempt hits cap", initial: time.Second, factor: 2, attempt: 5000, maxDelay: 10 * time.Second, expected: 10 * time.Second},
		{name: "huge attempt without cap saturates", initial: time.Second, factor: 2, attempt: 5000, maxDelay: 0, expected: time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, Capped(tt.initial, tt.factor, tt.attempt, tt.maxDelay))
		})
	}
}

func TestHalfJitter_Bounds(t *testing.T) {
	t.Parallel()

	for _, delay := range []time.Duration{500 * time.Millisecond, 5 * time.Second, 3 * time.Nanosecond} {
		for range 200 {
			got := HalfJitter(delay)
			assert.GreaterOrEqual(t, float64(got), float64(delay)*0.5, "delay %s", delay)
			assert.Less(t, got, delay, "delay %s", delay)
		}
	}

	assert.Equal(t, time.Duration(0), HalfJitter(0))
}

func TestReconnect(t *testing.T) {
	t.Parallel()

	for range 100 {
		got := Reconnect(500*time.Millisecond, 2, 30*time.Second)
		assert.GreaterOrEqual(t, got, time.Second)
		assert.Less(t, got, 2*time.Second)
	}

	assert.Equal(t, 30*time.Second, Reconnect(time.Second, 40, 30*time.Second))
	assert.Equal(t, time.Duration(0), Reconnect(0, 3, time.Minute))
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()

	t.Run("completes", func(t *testing.T) {
		t.Parallel()

		start := time.Now()
		require.NoError(t, SleepWithContext(context.Background(), 10*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("zero duration returns immediately", func(t *testing.T) {
		t.Parallel()

		require.NoError(t, SleepWithContext(context.Background(), 0))
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := SleepWithContext(ctx, time.Minute)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
