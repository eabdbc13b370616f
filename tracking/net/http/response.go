package http

import (
	"errors"
	"net/http"

	cn "github.com/LerianStudio/lib-tracking/tracking/constants"
	"github.com/gofiber/fiber/v2"
)

// Response is the success envelope.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorResponse is the failure envelope. Reason repeats Message under "error" for clients
// that only read the envelope fields.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Reason  string `json:"error"`
}

// Error allows ErrorResponse to satisfy the error interface.
func (e ErrorResponse) Error() string {
	return e.Message
}

// NewErrorResponse builds an ErrorResponse usable both as an error and as a body.
func NewErrorResponse(status int, title, message string) ErrorResponse {
	return ErrorResponse{Code: status, Title: title, Message: message, Reason: message}
}

func validStatus(status int) bool {
	return status >= http.StatusContinue && status <= 599
}

// Respond writes payload as JSON. Out-of-range statuses become 500.
func Respond(c *fiber.Ctx, status int, payload any) error {
	if !validStatus(status) {
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(payload)
}

// Success writes {"success": true, "data": data}.
func Success(c *fiber.Ctx, status int, data any) error {
	return Respond(c, status, Response{Success: true, Data: data})
}

// OK writes a 200 success envelope.
func OK(c *fiber.Ctx, data any) error {
	return Success(c, fiber.StatusOK, data)
}

// Accepted writes a 202 success envelope.
func Accepted(c *fiber.Ctx, data any) error {
	return Success(c, fiber.StatusAccepted, data)
}

// RespondError writes the failure envelope.
func RespondError(c *fiber.Ctx, status int, title, message string) error {
	if !validStatus(status) {
		status = fiber.StatusInternalServerError
	}

	if title == "" {
		title = cn.DefaultErrorTitle
	}

	if message == "" {
		message = http.StatusText(status)
	}

	return Respond(c, status, NewErrorResponse(status, title, message))
}

// RenderError writes all transport errors through a single, stable contract.
func RenderError(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}

	var presp *ErrorResponse
	if errors.As(err, &presp) && presp != nil {
		return RespondError(c, presp.Code, presp.Title, presp.Message)
	}

	var responseErr ErrorResponse
	if errors.As(err, &responseErr) {
		return RespondError(c, responseErr.Code, responseErr.Title, responseErr.Message)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return RespondError(c, fiberErr.Code, cn.DefaultErrorTitle, fiberErr.Message)
	}

	return RespondError(c, fiber.StatusInternalServerError, cn.DefaultErrorTitle, cn.DefaultInternalErrorMessage)
}
