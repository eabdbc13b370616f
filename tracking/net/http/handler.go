package http

import (
	"context"
	"errors"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking"
	cn "github.com/LerianStudio/lib-tracking/tracking/constants"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ping returns HTTP Status 200 with response "pong".
func Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// Version returns the given build version; empty falls back to the default.
func Version(version string) fiber.Handler {
	if version == "" {
		version = cn.DefaultVersion
	}

	return func(c *fiber.Ctx) error {
		return OK(c, fiber.Map{
			"version":     version,
			"requestDate": time.Now().UTC(),
		})
	}
}

// FiberErrorHandler is the canonical Fiber error handler. Unclassified errors
// are logged through the request logger and rendered with a generic message.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler error")
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return RespondError(c, fe.Code, cn.DefaultErrorTitle, fe.Message)
	}

	tracking.LoggerFromContext(ctx).Log(ctx, log.LevelError,
		"handler error",
		log.String("method", c.Method()),
		log.String("path", c.Path()),
		log.Err(err),
	)

	return RenderError(c, err)
}
