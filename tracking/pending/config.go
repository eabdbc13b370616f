package pending

import (
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultPollInterval = time.Second
	defaultDrainBudget  = 30 * time.Second
)

// Config controls how long the queue keeps trying to deliver.
type Config struct {
	// PollInterval is the backstop drain interval.
	PollInterval time.Duration `yaml:"poll_interval"`
	// DrainBudget is how long an item may wait before it is dropped.
	DrainBudget time.Duration `yaml:"drain_budget"`
	// MeterProvider overrides the default global meter provider when set.
	MeterProvider metric.MeterProvider `yaml:"-"`
}

// DefaultConfig returns a 1s backstop poll within a 30s budget.
func DefaultConfig() Config {
	return Config{
		PollInterval: defaultPollInterval,
		DrainBudget:  defaultDrainBudget,
	}
}

func (cfg *Config) normalize() {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	if cfg.DrainBudget <= 0 {
		cfg.DrainBudget = defaultDrainBudget
	}

	if cfg.PollInterval > cfg.DrainBudget {
		cfg.PollInterval = cfg.DrainBudget
	}

	if nilcheck.Interface(cfg.MeterProvider) {
		cfg.MeterProvider = nil
	}
}
