// Package retry runs a single network-bound call with bounded exponential
// backoff and jitter.
//
// Failures are classified as retryable (transport errors, timeouts, HTTP 408,
// 429 and 5xx) or terminal (other 4xx, ErrNonRetryable, caller cancellation).
// Terminal failures abort immediately without consuming retry budget. An Engine
// holds configuration only, so one instance is safely shared by every channel.
package retry
