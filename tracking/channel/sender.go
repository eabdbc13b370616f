package channel

import "context"

// Sender delivers events to one channel. Send never panics and reports
// acceptance as a bool; failures surface through logs and metrics.
type Sender interface {
	Name() Name
	Send(ctx context.Context, event Event) bool
}

// Probe is implemented by senders whose entry point may not be loaded yet.
type Probe interface {
	Available() bool
}
