//go:build unit

package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "plain transport error", err: errors.New("connection reset"), expected: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, expected: true},
		{name: "caller cancellation", err: fmt.Errorf("post: %w", context.Canceled), expected: false},
		{name: "500", err: &StatusError{StatusCode: 500}, expected: true},
		{name: "599", err: &StatusError{StatusCode: 599}, expected: true},
		{name: "408", err: &StatusError{StatusCode: 408}, expected: true},
		{name: "429", err: &StatusError{StatusCode: 429}, expected: true},
		{name: "400", err: &StatusError{StatusCode: 400}, expected: false},
		{name: "401 wrapped", err: fmt.Errorf("post: %w", &StatusError{StatusCode: 401}), expected: false},
		{name: "403", err: &StatusError{StatusCode: 403}, expected: false},
		{name: "terminal wrapper", err: Terminal(errors.New("breaker open")), expected: false},
		{name: "sentinel", err: fmt.Errorf("x: %w", ErrNonRetryable), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, IsRetryable(tt.err))
			if tt.err != nil {
				assert.Equal(t, !tt.expected, DefaultClassifier.IsNonRetryable(tt.err))
			}
		})
	}
}

func TestTerminalPreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")
	err := Terminal(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrNonRetryable)
	assert.Equal(t, "cause", err.Error())
	assert.NoError(t, Terminal(nil))
}

func TestStatusErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unexpected status 503", (&StatusError{StatusCode: 503}).Error())
	assert.Equal(t, "conversion: unexpected status 400", (&StatusError{StatusCode: 400, Endpoint: "conversion"}).Error())
}

func TestRetryClassifierFuncNil(t *testing.T) {
	t.Parallel()

	var fn RetryClassifierFunc

	assert.False(t, fn.IsNonRetryable(errors.New("x")))
}
