package retry

import "errors"

var (
	// ErrNonRetryable marks an error as terminal regardless of its cause.
	ErrNonRetryable = errors.New("non-retryable failure")
	// ErrUnsuccessfulResponse reports a 2xx response whose body declared success=false.
	ErrUnsuccessfulResponse = errors.New("remote reported unsuccessful delivery")
	// ErrOperationRequired is returned when Do is called without a function.
	ErrOperationRequired = errors.New("retry operation is required")
)

// Terminal wraps err so the engine does not retry it.
func Terminal(err error) error {
	if err == nil {
		return nil
	}

	return &terminalError{err: err}
}

type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }

func (e *terminalError) Unwrap() []error { return []error{ErrNonRetryable, e.err} }
