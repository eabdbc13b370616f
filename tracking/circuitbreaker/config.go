package circuitbreaker

import "time"

// DefaultConfig provides balanced settings for most endpoints.
func DefaultConfig() Config {
	return Config{
		MaxRequests:         3,
		Interval:            2 * time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 15,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

// HTTPServiceConfig is tuned for remote HTTP collectors: faster failure
// detection and a shorter open period.
func HTTPServiceConfig() Config {
	return Config{
		MaxRequests:         3,
		Interval:            2 * time.Minute,
		Timeout:             10 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

func (c Config) normalize() Config {
	defaults := DefaultConfig()

	if c.MaxRequests == 0 {
		c.MaxRequests = defaults.MaxRequests
	}

	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}

	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = defaults.ConsecutiveFailures
	}

	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = defaults.FailureRatio
	}

	if c.MinRequests == 0 {
		c.MinRequests = defaults.MinRequests
	}

	return c
}
