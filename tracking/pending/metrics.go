package pending

import (
	"context"
	"fmt"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type queueMetrics struct {
	enqueued  metric.Int64Counter
	delivered metric.Int64Counter
	failed    metric.Int64Counter
	abandoned metric.Int64Counter
	depth     metric.Int64UpDownCounter
}

func newQueueMetrics(provider metric.MeterProvider) (queueMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("tracking.pending")

	var (
		metrics queueMetrics
		err     error
	)

	metrics.enqueued, err = meter.Int64Counter(
		"tracking.pending.enqueued",
		metric.WithDescription("Number of events queued for a channel that was not loaded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return queueMetrics{}, fmt.Errorf("create tracking.pending.enqueued counter: %w", err)
	}

	metrics.delivered, err = meter.Int64Counter(
		"tracking.pending.delivered",
		metric.WithDescription("Number of queued events accepted by their channel"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return queueMetrics{}, fmt.Errorf("create tracking.pending.delivered counter: %w", err)
	}

	metrics.failed, err = meter.Int64Counter(
		"tracking.pending.failed",
		metric.WithDescription("Number of queued events whose single delivery attempt failed"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return queueMetrics{}, fmt.Errorf("create tracking.pending.failed counter: %w", err)
	}

	metrics.abandoned, err = meter.Int64Counter(
		"tracking.pending.abandoned",
		metric.WithDescription("Number of queued events dropped after the drain budget expired"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return queueMetrics{}, fmt.Errorf("create tracking.pending.abandoned counter: %w", err)
	}

	metrics.depth, err = meter.Int64UpDownCounter(
		"tracking.pending.depth",
		metric.WithDescription("Number of events currently waiting in the queue"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return queueMetrics{}, fmt.Errorf("create tracking.pending.depth counter: %w", err)
	}

	return metrics, nil
}

func (m queueMetrics) add(ctx context.Context, counter metric.Int64Counter, name channel.Name, n int) {
	if counter == nil || n == 0 {
		return
	}

	counter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("channel", name.String())))
}

func (m queueMetrics) moveDepth(ctx context.Context, name channel.Name, delta int) {
	if m.depth == nil || delta == 0 {
		return
	}

	m.depth.Add(ctx, int64(delta), metric.WithAttributes(attribute.String("channel", name.String())))
}
