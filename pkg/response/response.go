package response

import "github.com/gofiber/fiber/v2"

// Error codes
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeServiceError     = "SERVICE_ERROR"
)

// ErrorResponse is the failure body of every endpoint. "error" is a stable
// message, "details" carries the underlying cause.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
	Debug   bool   `json:"debug,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message, details string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:   message,
		Details: details,
		Code:    code,
	})
}

// DebugError is Error with the body tagged for the debug deployment
func DebugError(c *fiber.Ctx, status int, code, message, details string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:   message,
		Details: details,
		Code:    code,
		Debug:   true,
	})
}

func ValidationError(c *fiber.Ctx, message, details string) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, "")
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, "")
}

func MethodNotAllowed(c *fiber.Ctx) error {
	return Error(c, fiber.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed", "")
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", "")
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, "")
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}
