// Package backoff computes the waits used between delivery attempts and
// between storage reconnects.
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Capped returns initial * factor^attempt, limited to maxDelay. Factors below
// one keep the delay constant, negative attempts count as the first one and a
// non-positive maxDelay only guards against overflow.
func Capped(initial time.Duration, factor float64, attempt int, maxDelay time.Duration) time.Duration {
	if initial <= 0 {
		return 0
	}

	if factor < 1 || math.IsNaN(factor) {
		factor = 1
	}

	ceiling := time.Duration(math.MaxInt64)
	if maxDelay > 0 {
		ceiling = maxDelay
	}

	delay := float64(initial) * math.Pow(factor, float64(max(attempt, 0)))
	if delay >= float64(ceiling) {
		return ceiling
	}

	return time.Duration(delay)
}

// Exponential doubles base once per attempt, saturating at the largest
// Duration.
func Exponential(base time.Duration, attempt int) time.Duration {
	return Capped(base, 2, attempt, 0)
}

// Reconnect is the throttle between failed storage reconnects: the doubled
// base with half jitter, never above ceiling.
func Reconnect(base time.Duration, attempt int, ceiling time.Duration) time.Duration {
	return min(HalfJitter(Exponential(base, attempt)), ceiling)
}

// HalfJitter returns a random duration in [delay/2, delay). Spreading the
// retries of many browsers or relay replicas keeps them from hitting a
// recovering collector in lockstep.
func HalfJitter(delay time.Duration) time.Duration {
	if delay <= 1 {
		return max(delay, 0)
	}

	lower := delay - delay/2

	return lower + rand.N(delay-lower) // #nosec G404 -- jitter needs no cryptographic randomness
}

// SleepWithContext waits for d or until ctx is done, whichever comes first.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
