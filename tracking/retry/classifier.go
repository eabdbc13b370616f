package retry

import (
	"context"
	"errors"
)

// RetryClassifier determines whether an error should not be retried.
type RetryClassifier interface {
	IsNonRetryable(err error) bool
}

// RetryClassifierFunc adapts a function to RetryClassifier.
type RetryClassifierFunc func(err error) bool

// IsNonRetryable implements RetryClassifier.
func (fn RetryClassifierFunc) IsNonRetryable(err error) bool {
	if fn == nil {
		return false
	}

	return fn(err)
}

// DefaultClassifier treats transport errors, timeouts and retryable statuses
// as transient, and everything explicitly terminal as non-retryable.
var DefaultClassifier RetryClassifier = RetryClassifierFunc(func(err error) bool {
	return !IsRetryable(err)
})

// IsRetryable reports whether err is a transient delivery failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNonRetryable) || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	return true
}
