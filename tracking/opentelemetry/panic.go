package opentelemetry

import (
	"context"

	"github.com/LerianStudio/lib-tracking/tracking/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const panicInstrumentation = "github.com/LerianStudio/lib-tracking/tracking/runtime"

// PanicReporter records recovered panics as span errors. A panic inside a
// traced request marks that span; one in a background goroutine gets a span
// of its own so it still reaches the collector.
type PanicReporter struct{}

var _ runtime.PanicReporter = PanicReporter{}

func (PanicReporter) ReportPanic(ctx context.Context, report runtime.PanicReport) {
	attrs := []attribute.KeyValue{
		attribute.String("app.panic.component", report.Component),
		attribute.String("app.panic.goroutine", report.Goroutine),
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		_, span = otel.Tracer(panicInstrumentation).Start(ctx, "panic "+report.Goroutine)
		defer span.End()
	}

	span.RecordError(report.Err, trace.WithStackTrace(false), trace.WithAttributes(
		append(attrs, attribute.String("exception.stacktrace", report.Stack))...))
	span.SetStatus(codes.Error, report.Err.Error())
}
