//go:build unit

package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures requested waits without sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delays = append(s.delays, d)

	return s.err
}

func failingN(n int, err error) (func(context.Context) error, *int) {
	calls := 0

	return func(context.Context) error {
		calls++
		if calls <= n {
			return err
		}

		return nil
	}, &calls
}

func TestPolicyDelay_CappedSequence(t *testing.T) {
	t.Parallel()

	policy := Policy{MaxRetries: 6, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Factor: 2}

	got := make([]time.Duration, 0, 7)
	for attempt := range 7 {
		got = append(got, policy.Delay(attempt))
	}

	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
	}, got)
}

func TestPolicyNormalize(t *testing.T) {
	t.Parallel()

	p := Policy{MaxRetries: -1, MaxDelay: time.Millisecond, Factor: 0}.normalize()

	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, defaultInitialDelay, p.InitialDelay)
	assert.Equal(t, defaultInitialDelay, p.MaxDelay)
	assert.InDelta(t, defaultFactor, p.Factor, 0)
}

func TestEngine_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	engine := NewEngine(DefaultPolicy(), WithSleeper(sleeper.sleep))

	fn, calls := failingN(0, nil)
	result := engine.Do(context.Background(), "conversion", fn)

	assert.True(t, result.OK())
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 0, result.Retries)
	assert.Equal(t, 1, *calls)
	assert.Empty(t, sleeper.delays)
}

func TestEngine_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "service unavailable", err: &StatusError{StatusCode: http.StatusServiceUnavailable}},
		{name: "too many requests", err: &StatusError{StatusCode: http.StatusTooManyRequests}},
		{name: "request timeout", err: &StatusError{StatusCode: http.StatusRequestTimeout}},
		{name: "transport error", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}},
		{name: "per request timeout", err: fmt.Errorf("post: %w", context.DeadlineExceeded)},
		{name: "success false body", err: ErrUnsuccessfulResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sleeper := &recordingSleeper{}
			engine := NewEngine(Policy{MaxRetries: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Factor: 2},
				WithSleeper(sleeper.sleep))

			fn, calls := failingN(2, tt.err)
			result := engine.Do(context.Background(), "measurement", fn)

			require.True(t, result.OK())
			assert.Equal(t, 3, *calls)
			assert.Equal(t, 2, result.Retries)
			assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeper.delays)
		})
	}
}

func TestEngine_NonRetryableConsumesNoRetries(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			t.Parallel()

			sleeper := &recordingSleeper{}
			engine := NewEngine(DefaultPolicy(), WithSleeper(sleeper.sleep))

			fn, calls := failingN(10, &StatusError{StatusCode: code, Endpoint: "conversion"})
			result := engine.Do(context.Background(), "conversion", fn)

			require.False(t, result.OK())
			assert.Equal(t, 1, *calls)
			assert.Equal(t, 1, result.Attempts)
			assert.Equal(t, 0, result.Retries)
			assert.Empty(t, sleeper.delays)

			var statusErr *StatusError
			require.ErrorAs(t, result.Err, &statusErr)
			assert.Equal(t, code, statusErr.StatusCode)
		})
	}
}

func TestEngine_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	engine := NewEngine(Policy{MaxRetries: 2, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Factor: 2},
		WithSleeper(sleeper.sleep))

	errDown := &StatusError{StatusCode: http.StatusBadGateway}
	fn, calls := failingN(100, errDown)
	result := engine.Do(context.Background(), "conversion", fn)

	require.False(t, result.OK())
	assert.Equal(t, 3, *calls)
	assert.Equal(t, 2, result.Retries)
	assert.ErrorIs(t, result.Err, errDown)
	assert.Contains(t, result.Err.Error(), "attempt 3/3")
}

func TestEngine_JitteredDelaysStayWithinHalfToFull(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	policy := Policy{MaxRetries: 5, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Factor: 2, Jitter: true}
	engine := NewEngine(policy, WithSleeper(sleeper.sleep))

	fn, _ := failingN(100, errors.New("network down"))
	result := engine.Do(context.Background(), "conversion", fn)

	require.False(t, result.OK())
	require.Len(t, sleeper.delays, 5)

	for attempt, delay := range sleeper.delays {
		base := policy.Delay(attempt)
		assert.GreaterOrEqual(t, float64(delay), float64(base)*0.5, "attempt %d", attempt)
		assert.Less(t, delay, base, "attempt %d", attempt)
	}
}

func TestEngine_StopsWhenWaitInterrupted(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{err: context.Canceled}
	engine := NewEngine(DefaultPolicy(), WithSleeper(sleeper.sleep))

	fn, calls := failingN(100, errors.New("network down"))
	result := engine.Do(context.Background(), "conversion", fn)

	require.False(t, result.OK())
	assert.Equal(t, 1, *calls)
	assert.Contains(t, result.Err.Error(), "retry wait interrupted")
}

func TestEngine_CancelledContextIsTerminal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	result := NewEngine(DefaultPolicy()).Do(ctx, "conversion", func(context.Context) error {
		calls++
		return nil
	})

	require.False(t, result.OK())
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, result.Err, ErrNonRetryable)
}

func TestEngine_PanicIsContained(t *testing.T) {
	t.Parallel()

	result := NewEngine(DefaultPolicy()).Do(context.Background(), "conversion", func(context.Context) error {
		panic("adapter bug")
	})

	require.False(t, result.OK())
	assert.Equal(t, 1, result.Attempts)
	assert.Contains(t, result.Err.Error(), "adapter bug")
}

func TestEngine_NilOperationAndReceiver(t *testing.T) {
	t.Parallel()

	var engine *Engine

	result := engine.Do(context.Background(), "x", nil)
	assert.ErrorIs(t, result.Err, ErrOperationRequired)
	assert.Equal(t, DefaultPolicy(), engine.Policy())
}

func TestEngine_CustomClassifier(t *testing.T) {
	t.Parallel()

	errQuota := errors.New("quota")
	engine := NewEngine(DefaultPolicy(),
		WithSleeper((&recordingSleeper{}).sleep),
		WithClassifier(RetryClassifierFunc(func(err error) bool { return errors.Is(err, errQuota) })))

	fn, calls := failingN(100, errQuota)
	result := engine.Do(context.Background(), "conversion", fn)

	require.False(t, result.OK())
	assert.Equal(t, 1, *calls)
}
