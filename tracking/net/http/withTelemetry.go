package http

import (
	"errors"
	"slices"

	"github.com/LerianStudio/lib-tracking/tracking/opentelemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WithTelemetry starts a server span per request, continuing the trace carried
// by the incoming headers. Requests to excludedRoutes are not traced.
func WithTelemetry(tl *opentelemetry.Telemetry, excludedRoutes ...string) fiber.Handler {
	tracer := tl.Tracer()

	return func(c *fiber.Ctx) error {
		if slices.Contains(excludedRoutes, c.Path()) {
			return c.Next()
		}

		requestID := setRequestHeaderID(c)

		ctx, span := tracer.Start(opentelemetry.ExtractHTTPContext(c), c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.url", c.Path()),
			attribute.String("http.scheme", c.Protocol()),
			attribute.String("http.host", c.Hostname()),
			attribute.String("http.user_agent", c.Get(fiber.HeaderUserAgent)),
			attribute.String("app.request.request_id", requestID),
		)

		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		}

		span.SetAttributes(
			attribute.String("http.route", c.Route().Path),
			attribute.Int("http.status_code", status),
		)

		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, utils.StatusMessage(status))
		}

		if err != nil {
			span.RecordError(err)
		}

		return err
	}
}
