package opentelemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-tracking/tracking/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const telemetrySDKName = "lib-tracking"

// ErrMissingEndpoint is returned when telemetry is enabled without a collector endpoint.
var ErrMissingEndpoint = errors.New("telemetry collector endpoint is required")

// Config describes the process exporting telemetry.
type Config struct {
	LibraryName               string
	ServiceName               string
	ServiceVersion            string
	DeploymentEnv             string
	CollectorExporterEndpoint string
	EnableTelemetry           bool
	// Insecure disables TLS towards the collector.
	Insecure bool
	Logger   log.Logger
}

// Telemetry holds the providers built by New.
type Telemetry struct {
	cfg            Config
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	shutdown       []func(context.Context) error
}

// New builds the providers described by cfg. When telemetry is enabled the
// providers export over OTLP gRPC and are installed as the global providers
// together with the W3C trace context and baggage propagators. Disabled
// telemetry still returns usable providers that record nothing remotely.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	logger := log.OrNop(cfg.Logger)
	cfg.Logger = logger

	if cfg.LibraryName == "" {
		cfg.LibraryName = cfg.ServiceName
	}

	if !cfg.EnableTelemetry {
		logger.Log(ctx, log.LevelWarn, "telemetry turned off")

		return &Telemetry{
			cfg:            cfg,
			TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(NewObfuscatingSpanProcessor(nil))),
			MeterProvider:  sdkmetric.NewMeterProvider(),
			LoggerProvider: sdklog.NewLoggerProvider(),
		}, nil
	}

	if cfg.CollectorExporterEndpoint == "" {
		return nil, ErrMissingEndpoint
	}

	res := cfg.newResource()

	traceExporter, err := otlptracegrpc.New(ctx, cfg.traceOptions()...)
	if err != nil {
		return nil, fmt.Errorf("can't initialize tracer exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, cfg.metricOptions()...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("can't initialize metric exporter: %w", err)
	}

	logExporter, err := otlploggrpc.New(ctx, cfg.logOptions()...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		_ = metricExporter.Shutdown(ctx)

		return nil, fmt.Errorf("can't initialize logger exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(NewObfuscatingSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter))),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Log(ctx, log.LevelInfo, "telemetry initialized",
		log.String("endpoint", cfg.CollectorExporterEndpoint),
		log.String("service", cfg.ServiceName))

	return &Telemetry{
		cfg:            cfg,
		TracerProvider: tp,
		MeterProvider:  mp,
		LoggerProvider: lp,
		// Providers flush and close their exporters.
		shutdown: []func(context.Context) error{mp.Shutdown, tp.Shutdown, lp.Shutdown},
	}, nil
}

// Enabled reports whether t exports telemetry.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.cfg.EnableTelemetry
}

// Meter returns the meter provider, or the global one for a nil Telemetry.
func (t *Telemetry) Meter() metric.MeterProvider {
	if t == nil || t.MeterProvider == nil {
		return otel.GetMeterProvider()
	}

	return t.MeterProvider
}

// Tracer returns a tracer named after the configured library.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.TracerProvider == nil {
		return otel.Tracer(telemetrySDKName)
	}

	return t.TracerProvider.Tracer(t.cfg.LibraryName)
}

// Shutdown flushes and stops every provider. It is safe to call on a disabled
// or nil Telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	for _, shutdown := range t.shutdown {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		t.cfg.Logger.Log(ctx, log.LevelError, "telemetry shutdown failed", log.Err(err))

		return err
	}

	return nil
}

func (cfg Config) newResource() *sdkresource.Resource {
	return sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.DeploymentEnv),
		semconv.TelemetrySDKName(telemetrySDKName),
		semconv.TelemetrySDKLanguageGo,
	)
}

func (cfg Config) traceOptions() []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorExporterEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	return opts
}

func (cfg Config) metricOptions() []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorExporterEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	return opts
}

func (cfg Config) logOptions() []otlploggrpc.Option {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorExporterEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}

	return opts
}
