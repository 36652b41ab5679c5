package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/travelclothingclub/api/internal/config"
	"github.com/travelclothingclub/api/internal/model"
	"github.com/travelclothingclub/api/internal/service"
	"github.com/travelclothingclub/api/pkg/response"
)

type TryOnHandler struct {
	service *service.TryOnService
	ingress *Ingress
	upload  config.UploadConfig
	timeout time.Duration
	debug   bool
}

func NewTryOnHandler(svc *service.TryOnService, ingress *Ingress, upload config.UploadConfig, timeout time.Duration, debug bool) *TryOnHandler {
	return &TryOnHandler{
		service: svc,
		ingress: ingress,
		upload:  upload,
		timeout: timeout,
		debug:   debug,
	}
}

// Handle serves /api/fashn-tryon for every method.
// @Summary      Generate a virtual try-on
// @Description  Submits the garment and a model photo (or a gender for a stock photo) and waits for the result
// @Tags         TryOn
// @Accept       multipart/form-data,json
// @Produce      json
// @Param        clothing_image formData file   true  "Garment image (JPEG, PNG, WebP; max 10MB)"
// @Param        model_image    formData file   false "Model photo"
// @Param        gender         formData string false "Male or Female, required without model_image"
// @Success      200 {object} model.TryOnResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      405 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/fashn-tryon [post]
func (h *TryOnHandler) Handle(c *fiber.Ctx) error {
	setCORSHeaders(c)

	switch c.Method() {
	case fiber.MethodOptions:
		// Preflight: headers only, empty body
		c.Status(fiber.StatusOK)
		return nil
	case fiber.MethodPost:
	default:
		return response.Error(c, fiber.StatusMethodNotAllowed, "", "Method not allowed", "")
	}

	if !h.service.IsConfigured() {
		return h.fail(c, &service.ProxyError{
			Kind:    service.KindConfiguration,
			Message: service.MessageConfiguration,
			Details: service.ErrNotConfigured.Error(),
			Err:     service.ErrNotConfigured,
		})
	}

	req, cleanup, err := h.ingress.Parse(c)
	defer cleanup()
	if err != nil {
		return h.fail(c, err)
	}

	input, err := h.service.BuildInput(req, h.upload.StrictValidation, h.upload.MaxSize)
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	result, err := h.service.Run(ctx, input, nil)
	if err != nil {
		return h.fail(c, err)
	}

	return response.OK(c, model.TryOnResponse{
		TryOnImageURL: result.ImageURL,
		Output:        result.ImageURL,
	})
}

// fail renders the proxy's exact failure body, {error, details}; the kind
// is only exposed in debug mode.
func (h *TryOnHandler) fail(c *fiber.Ctx, err error) error {
	pe := service.AsProxyError(err)
	status := pe.HTTPStatus(h.debug)
	if h.debug {
		return response.DebugError(c, status, string(pe.Kind), pe.Message, pe.Details)
	}
	return response.Error(c, status, "", pe.Message, pe.Details)
}

// writeProxyError renders any error in the proxy's failure shape with its kind
func writeProxyError(c *fiber.Ctx, err error, debug bool) error {
	pe := service.AsProxyError(err)
	status := pe.HTTPStatus(debug)
	if debug {
		return response.DebugError(c, status, string(pe.Kind), pe.Message, pe.Details)
	}
	return response.Error(c, status, string(pe.Kind), pe.Message, pe.Details)
}

// CORS sets the try-on CORS headers before anything else runs, so responses
// from the rate limiter and the error handler carry them too.
func CORS(c *fiber.Ctx) error {
	setCORSHeaders(c)
	return c.Next()
}

func setCORSHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowMethods, "POST, OPTIONS")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")
}
