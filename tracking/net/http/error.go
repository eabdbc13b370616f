package http

import (
	cn "github.com/LerianStudio/lib-tracking/tracking/constants"
	"github.com/gofiber/fiber/v2"
)

// BadRequestError rejects a payload that failed parsing or validation.
func BadRequestError(c *fiber.Ctx, message string) error {
	return RespondError(c, fiber.StatusBadRequest, cn.TitleInvalidPayload, message)
}

// UnsupportedMediaTypeError rejects a body that is not JSON.
func UnsupportedMediaTypeError(c *fiber.Ctx, message string) error {
	return RespondError(c, fiber.StatusUnsupportedMediaType, cn.TitleUnsupportedMediaType, message)
}

// UpstreamDisabledError answers 404 for an upstream the relay was not
// configured to forward to.
func UpstreamDisabledError(c *fiber.Ctx, message string) error {
	return RespondError(c, fiber.StatusNotFound, cn.TitleUpstreamDisabled, message)
}

// UpstreamError reports a forward that failed with outcome. status is the
// relay's own mapping of the failure and message must not quote the upstream
// response body.
func UpstreamError(c *fiber.Ctx, status int, outcome, message string) error {
	return RespondError(c, status, cn.TitleUpstreamPrefix+outcome, message)
}
