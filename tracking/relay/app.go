package relay

import (
	"github.com/LerianStudio/lib-tracking/tracking/log"
	thttp "github.com/LerianStudio/lib-tracking/tracking/net/http"
	"github.com/LerianStudio/lib-tracking/tracking/opentelemetry"
	"github.com/LerianStudio/lib-tracking/tracking/runtime"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay routes.
const (
	RouteConversions = "/v1/conversions"
	RouteMeasurement = "/v1/measurement"
	RouteHealth      = "/health"
	RoutePing        = "/ping"
	RouteVersion     = "/version"
	RouteMetrics     = "/metrics"
)

// AppConfig configures the HTTP surface of a Relay.
type AppConfig struct {
	Name             string
	Version          string
	BodyLimit        int
	CORSAllowOrigins string
	LogBodies        bool
	Logger           log.Logger
	// Telemetry traces requests; nil uses the global tracer provider.
	Telemetry *opentelemetry.Telemetry
}

// NewApp builds the fiber application serving r.
func NewApp(r *Relay, cfg AppConfig) (*fiber.App, error) {
	if r == nil {
		return nil, ErrNilRelay
	}

	if cfg.Name == "" {
		cfg.Name = "tracking-relay"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = r.logger
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          thttp.FiberErrorHandler,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			runtime.HandlePanicValue(c.UserContext(), logger, e, "relay", c.Method()+" "+c.Path())
		},
	}))
	thttp.AllowFullOptionsWithCORS(app, cfg.CORSAllowOrigins)
	app.Use(thttp.WithHTTPLogging(
		thttp.WithCustomLogger(logger),
		thttp.WithRequestBodies(cfg.LogBodies),
		thttp.WithSkipPaths(RoutePing, RouteVersion),
	))
	app.Use(thttp.WithTelemetry(cfg.Telemetry, RoutePing, RouteHealth, RouteMetrics))

	app.Get(RoutePing, thttp.Ping)
	app.Get(RouteHealth, thttp.HealthWithDependencies(r.Health()...))
	app.Get(RouteVersion, thttp.Version(cfg.Version))
	app.Get(RouteMetrics, adaptor.HTTPHandler(promhttp.HandlerFor(r.Registry(), promhttp.HandlerOpts{})))

	app.Post(RouteConversions, r.HandleConversion)
	app.Post(RouteMeasurement, r.HandleMeasurement)

	return app, nil
}
