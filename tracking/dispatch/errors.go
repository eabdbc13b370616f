package dispatch

import "errors"

var (
	// ErrStoreRequired is returned when no identity store is given.
	ErrStoreRequired = errors.New("identity store is required")
	// ErrNoChannels is returned when a dispatcher has neither tag nor endpoint senders.
	ErrNoChannels = errors.New("at least one channel sender is required")
	// ErrEventNameRequired is reported for events without a name.
	ErrEventNameRequired = errors.New("event name is required")
)
