package retry

import (
	"fmt"
	"net/http"
)

// StatusError is returned by endpoint adapters for non-2xx responses.
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}

	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.StatusCode)
}

// Retryable reports whether the status belongs to the retryable set:
// request timeout, too many requests and the 5xx range.
func (e *StatusError) Retryable() bool {
	return IsRetryableStatus(e.StatusCode)
}

// IsRetryableStatus reports whether an HTTP status code warrants another attempt.
func IsRetryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= http.StatusInternalServerError && code <= 599:
		return true
	default:
		return false
	}
}
