package relay

import "errors"

var (
	// ErrNoUpstream is returned by New when neither upstream is configured.
	ErrNoUpstream = errors.New("relay needs at least one upstream")
	// ErrUpstreamDisabled is returned when a payload targets an unconfigured upstream.
	ErrUpstreamDisabled = errors.New("relay upstream is disabled")
	// ErrNilRelay is returned by methods called on a nil *Relay.
	ErrNilRelay = errors.New("relay is nil")
)
