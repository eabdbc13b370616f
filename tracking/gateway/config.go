package gateway

import (
	"maps"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultAttempts = 10
	defaultInterval = 500 * time.Millisecond
)

// DefaultNameMap translates tag event names into analytics tag event names.
var DefaultNameMap = map[string]string{
	"PageView":             "page_view",
	"Lead":                 "generate_lead",
	"Contact":              "contact",
	"ViewContent":          "view_item",
	"CompleteRegistration": "sign_up",
	"Schedule":             "schedule",
	"Purchase":             "purchase",
	"InitiateCheckout":     "begin_checkout",
}

// Config controls readiness polling and name translation.
type Config struct {
	// Source is the channel whose dispatch function is wrapped.
	Source channel.Name `yaml:"source"`
	// Attempts bounds readiness polling.
	Attempts int `yaml:"attempts"`
	// Interval separates readiness polls.
	Interval time.Duration `yaml:"interval"`
	// NameMap translates source event names. Unmapped names are mirrored unchanged.
	NameMap map[string]string `yaml:"name_map"`
	// MeterProvider overrides the default global meter provider when set.
	MeterProvider metric.MeterProvider `yaml:"-"`
}

// DefaultConfig wraps the tag channel after at most 10 polls 500ms apart.
func DefaultConfig() Config {
	return Config{
		Source:   channel.ChannelTag,
		Attempts: defaultAttempts,
		Interval: defaultInterval,
		NameMap:  maps.Clone(DefaultNameMap),
	}
}

func (cfg *Config) normalize() {
	if cfg.Source == "" {
		cfg.Source = channel.ChannelTag
	}

	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}

	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	if cfg.NameMap == nil {
		cfg.NameMap = maps.Clone(DefaultNameMap)
	} else {
		cfg.NameMap = maps.Clone(cfg.NameMap)
	}

	if nilcheck.Interface(cfg.MeterProvider) {
		cfg.MeterProvider = nil
	}
}
