package handler

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/travelclothingclub/api/internal/config"
	"github.com/travelclothingclub/api/internal/middleware"
	"github.com/travelclothingclub/api/internal/service"
	"github.com/travelclothingclub/api/pkg/response"
)

type JobHandler struct {
	tryOn   *service.TryOnService
	jobs    *service.JobService
	ingress *Ingress
	upload  config.UploadConfig
	debug   bool
}

func NewJobHandler(tryOn *service.TryOnService, jobs *service.JobService, ingress *Ingress, upload config.UploadConfig, debug bool) *JobHandler {
	return &JobHandler{
		tryOn:   tryOn,
		jobs:    jobs,
		ingress: ingress,
		upload:  upload,
		debug:   debug,
	}
}

// Start handles POST /api/tryon/jobs
// @Summary      Queue a virtual try-on
// @Tags         TryOn
// @Accept       multipart/form-data,json
// @Produce      json
// @Security     BearerAuth
// @Success      202 {object} model.JobStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/tryon/jobs [post]
func (h *JobHandler) Start(c *fiber.Ctx) error {
	if !h.tryOn.IsConfigured() {
		return writeProxyError(c, &service.ProxyError{
			Kind:    service.KindConfiguration,
			Message: service.MessageConfiguration,
			Details: service.ErrNotConfigured.Error(),
			Err:     service.ErrNotConfigured,
		}, h.debug)
	}

	req, cleanup, err := h.ingress.Parse(c)
	defer cleanup()
	if err != nil {
		return writeProxyError(c, err, h.debug)
	}

	input, err := h.tryOn.BuildInput(req, h.upload.StrictValidation, h.upload.MaxSize)
	if err != nil {
		return writeProxyError(c, err, h.debug)
	}

	result, err := h.jobs.StartTryOn(c.UserContext(), middleware.GetUserID(c), input)
	if err != nil {
		log.Printf("[TryOn] ✗ failed to queue job: %v", err)
		return response.ServiceError(c, "Failed to queue try-on job")
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/tryon/jobs/:jobId
// @Summary      Get try-on job status
// @Tags         TryOn
// @Produce      json
// @Security     BearerAuth
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/tryon/jobs/{jobId} [get]
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", "")
	}

	if err := h.authorize(c.UserContext(), jobID, middleware.GetUserID(c)); err != nil {
		return h.jobError(c, err)
	}

	result, err := h.jobs.GetStatus(c.UserContext(), jobID)
	if err != nil {
		return h.jobError(c, err)
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/tryon/jobs/:jobId/cancel
// @Summary      Cancel a try-on job
// @Tags         TryOn
// @Produce      json
// @Security     BearerAuth
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobCancelResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/tryon/jobs/{jobId}/cancel [post]
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", "")
	}

	if err := h.authorize(c.UserContext(), jobID, middleware.GetUserID(c)); err != nil {
		return h.jobError(c, err)
	}

	result, err := h.jobs.CancelJob(c.UserContext(), jobID)
	if err != nil {
		return h.jobError(c, err)
	}

	return response.OK(c, result)
}

// authorize hides jobs owned by other users behind ErrJobNotFound
func (h *JobHandler) authorize(ctx context.Context, jobID, userID string) error {
	job, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.UserID != "" && job.UserID != userID {
		return service.ErrJobNotFound
	}
	return nil
}

func (h *JobHandler) jobError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrJobTerminal):
		return response.ValidationError(c, "Job already finished", "")
	default:
		return response.ServiceError(c, err.Error())
	}
}

// Subscribe guards /ws/jobs/:jobId; browsers cannot set headers on a
// WebSocket upgrade, so the token may arrive as ?token=.
func (h *JobHandler) Subscribe(authenticate fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := c.Query("token"); token != "" && c.Get(fiber.HeaderAuthorization) == "" {
			c.Request().Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
		return authenticate(c)
	}
}

// AuthorizeSubscription lets the owner of a job open its progress stream
func (h *JobHandler) AuthorizeSubscription(c *fiber.Ctx) error {
	if err := h.authorize(c.UserContext(), c.Params("jobId"), middleware.GetUserID(c)); err != nil {
		return h.jobError(c, err)
	}
	return c.Next()
}
