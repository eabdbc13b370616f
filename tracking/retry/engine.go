package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/backoff"
	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
)

// Result reports the outcome of one Do call.
type Result struct {
	// Attempts is the number of times the operation ran.
	Attempts int
	// Retries is the number of attempts after the first one.
	Retries int
	// Delays holds the waits applied between attempts.
	Delays []time.Duration
	// Err is the terminal error, nil on success.
	Err error
}

// OK reports whether the operation eventually succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Engine executes calls under a Policy.
type Engine struct {
	policy     Policy
	classifier RetryClassifier
	logger     log.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func(d time.Duration) time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		if !nilcheck.Interface(logger) {
			e.logger = logger
		}
	}
}

// WithClassifier overrides DefaultClassifier.
func WithClassifier(classifier RetryClassifier) Option {
	return func(e *Engine) {
		if !nilcheck.Interface(classifier) {
			e.classifier = classifier
		}
	}
}

// WithSleeper replaces the context-aware sleep, mainly for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// NewEngine builds an Engine for policy.
func NewEngine(policy Policy, opts ...Option) *Engine {
	engine := &Engine{
		policy:     policy.normalize(),
		classifier: DefaultClassifier,
		logger:     log.NewNop(),
		sleep:      backoff.SleepWithContext,
		jitter:     backoff.HalfJitter,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}

	return engine
}

// Policy returns the normalized policy.
func (e *Engine) Policy() Policy {
	if e == nil {
		return DefaultPolicy()
	}

	return e.policy
}

// Do runs fn until it succeeds, fails terminally, exhausts MaxRetries or ctx ends.
// It never panics past its boundary; a panicking fn is reported as a terminal error.
func (e *Engine) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) Result {
	if e == nil {
		e = NewEngine(DefaultPolicy())
	}

	if fn == nil {
		return Result{Err: ErrOperationRequired}
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var result Result

	for attempt := 0; ; attempt++ {
		result.Attempts++

		err := e.call(ctx, fn)
		if err == nil {
			result.Err = nil
			return result
		}

		result.Err = fmt.Errorf("%s attempt %d/%d failed: %w", operation, attempt+1, e.policy.MaxRetries+1, err)

		if e.classifier.IsNonRetryable(err) {
			e.logger.Log(ctx, log.LevelWarn, "delivery failed with terminal error",
				log.String("operation", operation), log.Int("attempt", attempt+1), log.Err(err))

			return result
		}

		if attempt >= e.policy.MaxRetries {
			e.logger.Log(ctx, log.LevelWarn, "delivery retries exhausted",
				log.String("operation", operation), log.Int("attempts", result.Attempts), log.Err(err))

			return result
		}

		delay := e.policy.Delay(attempt)
		if e.policy.Jitter {
			delay = e.jitter(delay)
		}

		e.logger.Log(ctx, log.LevelDebug, "retrying delivery",
			log.String("operation", operation), log.Int("attempt", attempt+1), log.Duration("delay", delay), log.Err(err))

		if waitErr := e.sleep(ctx, delay); waitErr != nil {
			result.Err = fmt.Errorf("%s retry wait interrupted: %w", operation, waitErr)
			return result
		}

		result.Delays = append(result.Delays, delay)
		result.Retries++
	}
}

func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = Terminal(fmt.Errorf("operation panicked: %v", recovered))
		}
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Terminal(ctxErr)
	}

	return fn(ctx)
}
