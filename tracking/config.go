package tracking

import (
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/LerianStudio/lib-tracking/tracking/circuitbreaker"
	"github.com/LerianStudio/lib-tracking/tracking/dispatch"
	"github.com/LerianStudio/lib-tracking/tracking/gateway"
	"github.com/LerianStudio/lib-tracking/tracking/pending"
	"github.com/LerianStudio/lib-tracking/tracking/retry"
)

const (
	// NamespaceTag is the dedup namespace of the tag side.
	NamespaceTag = "tag"
	// NamespaceAnalytics is the dedup namespace of the analytics side.
	NamespaceAnalytics = "analytics"

	defaultCurrency = "BRL"
)

// Config wires a Tracker. Empty endpoint URLs disable the matching endpoint.
type Config struct {
	ConversionURL   string `yaml:"conversion_url" env:"TRACKER_CONVERSION_URL"`
	MeasurementURL  string `yaml:"measurement_url" env:"TRACKER_MEASUREMENT_URL"`
	AnalyticsSendTo string `yaml:"analytics_send_to" env:"TRACKER_ANALYTICS_SEND_TO"`
	Currency        string `yaml:"currency" env:"TRACKER_CURRENCY"`

	// Windows override the dedup expiration table per event name.
	Windows map[string]time.Duration `yaml:"windows"`

	RequestTimeout time.Duration         `yaml:"request_timeout"`
	Retry          retry.Policy          `yaml:"retry"`
	Breaker        circuitbreaker.Config `yaml:"breaker"`
	Queue          pending.Config        `yaml:"queue"`
	Dispatch       dispatch.Config       `yaml:"dispatch"`
	Gateway        gateway.Config        `yaml:"gateway"`
	EnableGateway  bool                  `yaml:"enable_gateway" env:"TRACKER_ENABLE_GATEWAY"`
}

// DefaultConfig returns a tracker with both tag channels, the gateway enabled
// and no server endpoints.
func DefaultConfig() Config {
	return Config{
		Currency:       defaultCurrency,
		RequestTimeout: channel.DefaultRequestTimeout,
		Retry:          retry.DefaultPolicy(),
		Breaker:        circuitbreaker.HTTPServiceConfig(),
		Queue:          pending.DefaultConfig(),
		Dispatch:       dispatch.DefaultConfig(),
		Gateway:        gateway.DefaultConfig(),
		EnableGateway:  true,
	}
}

func (cfg Config) nameMap() map[string]string {
	if cfg.Gateway.NameMap != nil {
		return cfg.Gateway.NameMap
	}

	return gateway.DefaultNameMap
}

func (cfg *Config) normalize() {
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = channel.DefaultRequestTimeout
	}

	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.DefaultPolicy()
	}

	if cfg.Breaker == (circuitbreaker.Config{}) {
		cfg.Breaker = circuitbreaker.HTTPServiceConfig()
	}
}
