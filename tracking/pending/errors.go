package pending

import "errors"

var (
	ErrQueueRequired    = errors.New("pending queue is required")
	ErrRegistryRequired = errors.New("channel registry is required")
	ErrSenderRequired   = errors.New("sender is required")
	ErrUnknownChannel   = errors.New("no sender registered for channel")
	ErrEventNameInvalid = errors.New("queued event name is required")
	ErrQueueClosed      = errors.New("pending queue is closed")
)
