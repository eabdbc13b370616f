package dispatch

import (
	"context"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/pending"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
)

const defaultPageViewSettleDelay = time.Second

// PageViewEvent is delayed before server sends so browser cookies can settle.
const PageViewEvent = "PageView"

// Options tune a single SendEvent call. EventID is shared by every channel
// and generated as a UUIDv7 when empty. Metadata is stored with the dedup
// record.
type Options struct {
	SkipDeduplication bool
	SendToServer      bool
	EventID           string
	UserData          channel.UserData
	SourceURL         string
	UserProperties    map[string]any
	Metadata          map[string]any
}

// Config holds dispatcher settings.
type Config struct {
	// PageViewSettleDelay delays server sends of PageView events.
	PageViewSettleDelay time.Duration `yaml:"page_view_settle_delay"`
	// MeterProvider overrides the default global meter provider when set.
	MeterProvider metric.MeterProvider `yaml:"-"`
}

// DefaultConfig returns a 1s PageView settle delay.
func DefaultConfig() Config {
	return Config{PageViewSettleDelay: defaultPageViewSettleDelay}
}

func (cfg *Config) normalize() {
	if cfg.PageViewSettleDelay < 0 {
		cfg.PageViewSettleDelay = 0
	}

	if nilcheck.Interface(cfg.MeterProvider) {
		cfg.MeterProvider = nil
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTagSender adds a client-side tag channel.
func WithTagSender(sender channel.Sender) Option {
	return func(d *Dispatcher) {
		if !nilcheck.Interface(sender) {
			d.tags = append(d.tags, sender)
		}
	}
}

// WithEndpointSender adds a server endpoint channel, used when Options.SendToServer is set.
func WithEndpointSender(sender channel.Sender) Option {
	return func(d *Dispatcher) {
		if !nilcheck.Interface(sender) {
			d.endpoints = append(d.endpoints, sender)
		}
	}
}

// WithQueue hands events for unloaded tag channels to queue.
func WithQueue(queue *pending.Queue) Option {
	return func(d *Dispatcher) {
		if queue != nil {
			d.queue = queue
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger log.Logger) Option {
	return func(d *Dispatcher) {
		if !nilcheck.Interface(logger) {
			d.logger = logger
		}
	}
}

// WithClock injects the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithSleeper replaces the context-aware sleep used for the PageView settle delay.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// WithEventIDGenerator replaces the UUIDv7 event id generator.
func WithEventIDGenerator(generate func() string) Option {
	return func(d *Dispatcher) {
		if generate != nil {
			d.newEventID = generate
		}
	}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
