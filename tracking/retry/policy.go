package retry

import (
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/backoff"
)

const (
	defaultMaxRetries   = 3
	defaultInitialDelay = 500 * time.Millisecond
	defaultMaxDelay     = 5 * time.Second
	defaultFactor       = 2.0
)

// Policy configures the backoff schedule of an Engine.
type Policy struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Factor       float64       `yaml:"factor"`
	Jitter       bool          `yaml:"jitter"`
}

// DefaultPolicy returns 3 retries starting at 500ms, doubling up to 5s, with jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   defaultMaxRetries,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Factor:       defaultFactor,
		Jitter:       true,
	}
}

func (p Policy) normalize() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}

	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}

	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}

	if p.Factor < 1 {
		p.Factor = defaultFactor
	}

	return p
}

// Delay returns the unjittered wait before retry number attempt (0-based):
// min(MaxDelay, InitialDelay * Factor^attempt).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalize()

	return backoff.Capped(p.InitialDelay, p.Factor, attempt, p.MaxDelay)
}
