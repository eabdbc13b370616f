package channel

import "errors"

var (
	ErrRegistryRequired  = errors.New("channel registry is required")
	ErrDispatchRequired  = errors.New("dispatch function is required")
	ErrDecoratorRequired = errors.New("decorator is required")
	ErrNotInstalled      = errors.New("channel is not installed")
	ErrAlreadyWrapped    = errors.New("channel already has an active wrapper")
	ErrWrapperReleased   = errors.New("wrapper already restored")
	ErrEndpointRequired  = errors.New("endpoint URL is required")
	ErrEventNameRequired = errors.New("event name is required")
)
