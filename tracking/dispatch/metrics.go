package dispatch

import (
	"context"
	"fmt"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type dispatchMetrics struct {
	events   metric.Int64Counter
	channels metric.Int64Counter
	duration metric.Float64Histogram
}

func newDispatchMetrics(provider metric.MeterProvider) (dispatchMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("tracking.dispatch")

	var (
		metrics dispatchMetrics
		err     error
	)

	metrics.events, err = meter.Int64Counter(
		"tracking.dispatch.events",
		metric.WithDescription("Number of SendEvent calls by result"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatchMetrics{}, fmt.Errorf("create tracking.dispatch.events counter: %w", err)
	}

	metrics.channels, err = meter.Int64Counter(
		"tracking.dispatch.channel_results",
		metric.WithDescription("Number of per-channel delivery outcomes"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatchMetrics{}, fmt.Errorf("create tracking.dispatch.channel_results counter: %w", err)
	}

	metrics.duration, err = meter.Float64Histogram(
		"tracking.dispatch.duration",
		metric.WithDescription("Time spent fanning an event out to its channels"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return dispatchMetrics{}, fmt.Errorf("create tracking.dispatch.duration histogram: %w", err)
	}

	return metrics, nil
}

func (m dispatchMetrics) recordEvent(ctx context.Context, namespace, result string) {
	if m.events == nil {
		return
	}

	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("result", result),
	))
}

func (m dispatchMetrics) recordChannel(ctx context.Context, name channel.Name, outcome Outcome) {
	if m.channels == nil {
		return
	}

	m.channels.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", name.String()),
		attribute.String("outcome", string(outcome)),
	))
}

func (m dispatchMetrics) recordDuration(ctx context.Context, namespace string, seconds float64) {
	if m.duration == nil {
		return
	}

	m.duration.Record(ctx, seconds, metric.WithAttributes(attribute.String("namespace", namespace)))
}
