package runtime

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const panicRecoveredMetricName = "tracking.panic.recovered"

var (
	panicCounter   metric.Int64Counter
	panicCounterMu sync.RWMutex
)

// InitPanicMetrics registers the recovered-panic counter on provider.
// A nil provider uses the global OpenTelemetry meter provider.
func InitPanicMetrics(provider metric.MeterProvider) error {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	counter, err := provider.Meter("tracking.runtime").Int64Counter(
		panicRecoveredMetricName,
		metric.WithDescription("Number of panics recovered in tracking goroutines"),
		metric.WithUnit("{panic}"),
	)
	if err != nil {
		return err
	}

	panicCounterMu.Lock()
	panicCounter = counter
	panicCounterMu.Unlock()

	return nil
}

// ResetPanicMetrics clears the registered counter.
func ResetPanicMetrics() {
	panicCounterMu.Lock()
	panicCounter = nil
	panicCounterMu.Unlock()
}

func recordPanicMetric(ctx context.Context, component, name string) {
	panicCounterMu.RLock()
	counter := panicCounter
	panicCounterMu.RUnlock()

	if counter == nil {
		return
	}

	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("goroutine_name", name),
	))
}
