package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/travelclothingclub/api/pkg/response"
)

// ErrorHandler renders errors that escape a handler, including body-limit
// rejections and recovered panics, in the standard envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	// These responses never reach a route's own CORS handling
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")

	return response.Error(c, code, response.CodeServiceError, message, "")
}
