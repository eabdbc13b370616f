package relay

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Forward outcomes reported in the outcome label.
const (
	OutcomeForwarded   = "forwarded"
	OutcomeDuplicate   = "duplicate"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
	OutcomeInvalid     = "invalid"
)

type metrics struct {
	requests *prometheus.CounterVec
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	attempts *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracking_relay_requests_total",
			Help: "Relay requests by upstream and outcome.",
		}, []string{"upstream", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracking_relay_events_total",
			Help: "Events received by the relay by upstream and outcome.",
		}, []string{"upstream", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracking_relay_upstream_duration_seconds",
			Help:    "Time spent forwarding one request upstream, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracking_relay_upstream_attempts",
			Help:    "Upstream attempts per forwarded request.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}, []string{"upstream"}),
	}

	var err error

	m.requests, err = register(reg, m.requests)
	if err != nil {
		return nil, err
	}

	m.events, err = register(reg, m.events)
	if err != nil {
		return nil, err
	}

	m.duration, err = register(reg, m.duration)
	if err != nil {
		return nil, err
	}

	m.attempts, err = register(reg, m.attempts)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}

		return c, err
	}

	return c, nil
}

func (m *metrics) request(upstream, outcome string) {
	m.requests.WithLabelValues(upstream, outcome).Inc()
}

func (m *metrics) event(upstream, outcome string, n int) {
	if n > 0 {
		m.events.WithLabelValues(upstream, outcome).Add(float64(n))
	}
}

func (m *metrics) upstream(upstream string, elapsed time.Duration, attempts int) {
	m.duration.WithLabelValues(upstream).Observe(elapsed.Seconds())
	m.attempts.WithLabelValues(upstream).Observe(float64(attempts))
}
