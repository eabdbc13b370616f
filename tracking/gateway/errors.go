package gateway

import "errors"

var (
	// ErrRegistryRequired is returned when no channel registry is given.
	ErrRegistryRequired = errors.New("channel registry is required")
	// ErrMirrorRequired is returned when no mirror is given.
	ErrMirrorRequired = errors.New("mirror is required")
	// ErrReadinessExhausted is returned once polling for the source tag ran out of attempts.
	// The gateway does not poll again.
	ErrReadinessExhausted = errors.New("source channel never became ready")
	// ErrInstallInProgress is returned when Install is called while polling.
	ErrInstallInProgress = errors.New("gateway install already in progress")
	// ErrMalformedCall marks an intercepted call whose arguments cannot be parsed.
	ErrMalformedCall = errors.New("malformed tag call")
	// ErrGatewayRequired is returned by methods called on a nil gateway.
	ErrGatewayRequired = errors.New("gateway is required")
)
