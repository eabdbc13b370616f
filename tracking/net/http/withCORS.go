package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const (
	defaultAccessControlAllowOrigin  = "*"
	defaultAccessControlAllowMethods = "POST, GET, OPTIONS"
	defaultAccessControlAllowHeaders = "Accept, Content-Type, Content-Length, Accept-Encoding, X-Request-Id"
)

// WithCORS enables CORS for browser-originated tracking calls. An empty
// allowOrigins allows any origin; credentials are only allowed for explicit origins.
func WithCORS(allowOrigins string) fiber.Handler {
	allowOrigins = strings.TrimSpace(allowOrigins)
	if allowOrigins == "" {
		allowOrigins = defaultAccessControlAllowOrigin
	}

	return cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     defaultAccessControlAllowMethods,
		AllowHeaders:     defaultAccessControlAllowHeaders,
		AllowCredentials: allowOrigins != defaultAccessControlAllowOrigin,
	})
}

// AllowFullOptionsWithCORS installs WithCORS and answers every OPTIONS request.
func AllowFullOptionsWithCORS(app *fiber.App, allowOrigins string) {
	if app == nil {
		return
	}

	app.Use(WithCORS(allowOrigins))

	app.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
}
