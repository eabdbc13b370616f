package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// Manager keeps one breaker per delivery target, keyed by name (a channel
// name or a relay upstream). Execute fails with ErrBreakerNotFound until
// GetOrCreate registered the name.
type Manager interface {
	GetOrCreate(name string, config Config) CircuitBreaker
	Execute(name string, fn func() (any, error)) (any, error)
	GetState(name string) State
	GetCounts(name string) Counts
	// IsHealthy is true only for a closed breaker.
	IsHealthy(name string) bool
	// Reset replaces the breaker with a closed one built from the same config.
	Reset(name string)
	// RegisterStateChangeListener adds a listener. Listeners run on their own
	// goroutine and a panicking listener does not affect the others.
	RegisterStateChangeListener(listener StateChangeListener)
}

// CircuitBreaker is a single breaker handed out by Manager.GetOrCreate.
type CircuitBreaker interface {
	Execute(fn func() (any, error)) (any, error)
	State() State
	Counts() Counts
}

// Config tunes when a breaker opens and how it recovers. Zero fields take the
// DefaultConfig value, except Interval where zero keeps counts until the next
// state change.
type Config struct {
	// MaxRequests is the number of probe calls let through while half-open.
	MaxRequests uint32 `yaml:"max_requests"`
	// Interval clears the closed-state counts periodically.
	Interval time.Duration `yaml:"interval"`
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration `yaml:"timeout"`
	// ConsecutiveFailures opens the breaker outright.
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
	// FailureRatio opens the breaker once MinRequests calls were counted.
	FailureRatio float64 `yaml:"failure_ratio"`
	MinRequests  uint32  `yaml:"min_requests"`
}

// State of a breaker. StateUnknown is reported for names never registered.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

// Counts mirrors the gobreaker counters of the current window.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeListener observes breaker transitions, for example to surface
// an open collector on a dashboard.
type StateChangeListener interface {
	OnStateChange(name string, from State, to State)
}

// StateChangeListenerFunc lets a plain function be registered as a listener.
type StateChangeListenerFunc func(name string, from State, to State)

func (fn StateChangeListenerFunc) OnStateChange(name string, from State, to State) {
	fn(name, from, to)
}

// IsRejection reports whether err was produced by the breaker itself rather
// than by the protected call.
func IsRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

type circuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

func (cb *circuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return cb.breaker.Execute(fn)
}

func (cb *circuitBreaker) State() State {
	return convertGobreakerState(cb.breaker.State())
}

func (cb *circuitBreaker) Counts() Counts {
	return convertCounts(cb.breaker.Counts())
}

func convertCounts(counts gobreaker.Counts) Counts {
	return Counts(counts)
}

var gobreakerStates = map[gobreaker.State]State{
	gobreaker.StateClosed:   StateClosed,
	gobreaker.StateOpen:     StateOpen,
	gobreaker.StateHalfOpen: StateHalfOpen,
}

func convertGobreakerState(state gobreaker.State) State {
	if converted, ok := gobreakerStates[state]; ok {
		return converted
	}

	return StateUnknown
}
