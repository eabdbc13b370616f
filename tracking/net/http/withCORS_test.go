//go:build unit

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preflight(t *testing.T, app *fiber.App, origin string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodOptions, "/v1/conversions", nil)
	req.Header.Set(fiber.HeaderOrigin, origin)
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, http.MethodPost)

	resp, err := app.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestAllowFullOptionsWithCORS_NilApp(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		AllowFullOptionsWithCORS(nil, "")
	})
}

func TestWithCORS_ExplicitOriginAllowsCredentials(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	AllowFullOptionsWithCORS(app, "https://landing.example.com")

	resp := preflight(t, app, "https://landing.example.com")

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://landing.example.com", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", resp.Header.Get(fiber.HeaderAccessControlAllowCredentials))
	assert.Contains(t, resp.Header.Get(fiber.HeaderAccessControlAllowMethods), http.MethodPost)
}

func TestWithCORS_DefaultsToAnyOriginWithoutCredentials(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		app := fiber.New()
		app.Use(WithCORS("  "))
		app.Post("/v1/conversions", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

		resp := preflight(t, app, "https://anywhere.example.com")

		assert.Equal(t, "*", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
		assert.Empty(t, resp.Header.Get(fiber.HeaderAccessControlAllowCredentials))
	})
}
