// Package opentelemetry bootstraps tracing, metrics and log export for tracking
// services.
//
// New builds OTLP providers, or SDK providers without exporters when telemetry
// is disabled, so instrumented code behaves the same in both modes. Spans pass
// through an ObfuscatingSpanProcessor that masks credentials and clear-text
// visitor data before export.
//
// The package also carries W3C trace context across HTTP hops.
package opentelemetry
