package handler

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
	"github.com/skify/api/internal/service"
	"github.com/skify/api/pkg/response"
)

type TransformHandler struct {
	service   *service.TransformService
	validator *validator.Validate
}

func NewTransformHandler(svc *service.TransformService, v *validator.Validate) *TransformHandler {
	return &TransformHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/transform/start
func (h *TransformHandler) Start(c *fiber.Ctx) error {
	var req model.TransformStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartTransform(c.Context(), &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Accepted(c, result)
}

// AttachVideo handles POST /api/transform/:workflowId/video
func (h *TransformHandler) AttachVideo(c *fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return response.ValidationError(c, "Workflow ID is required", nil)
	}

	var req model.AttachVideoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.AttachVideo(c.Context(), workflowID, req.VideoRef)
	if err != nil {
		if errors.Is(err, pipeline.ErrWorkflowNotFound) {
			return response.NotFound(c, "Workflow not found")
		}
		return serviceError(c, err)
	}

	return response.OK(c, result)
}

// Workflow handles GET /api/transform/:workflowId
func (h *TransformHandler) Workflow(c *fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return response.ValidationError(c, "Workflow ID is required", nil)
	}

	result, err := h.service.GetWorkflow(c.Context(), workflowID)
	if err != nil {
		if errors.Is(err, pipeline.ErrWorkflowNotFound) {
			return response.NotFound(c, "Workflow not found")
		}
		return serviceError(c, err)
	}

	return response.OK(c, result)
}

// SubmitJob handles POST /api/jobs — standalone stage job submission.
func (h *TransformHandler) SubmitJob(c *fiber.Ctx) error {
	var req struct {
		Type     model.JobType   `json:"type" validate:"required"`
		Metadata json.RawMessage `json:"metadata" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.SubmitJob(c.Context(), req.Type, req.Metadata)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Accepted(c, fiber.Map{
		"jobId":     job.ID,
		"status":    job.Status,
		"createdAt": job.CreatedAt,
	})
}

// JobStatus handles GET /api/jobs/:jobId
func (h *TransformHandler) JobStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetJobStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return serviceError(c, err)
	}

	return response.OK(c, result)
}

// JobResult handles GET /api/jobs/:jobId/result
func (h *TransformHandler) JobResult(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetJobResult(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrJobNotCompleted) {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return serviceError(c, err)
	}

	c.Set("Content-Type", "application/json")
	return c.Send(result)
}

// CancelJob handles POST /api/jobs/:jobId/cancel
func (h *TransformHandler) CancelJob(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.CancelJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, pipeline.ErrAlreadyTerminal) {
			return response.ValidationError(c, "Job already finished", nil)
		}
		return serviceError(c, err)
	}

	return response.OK(c, result)
}

// serviceError maps pipeline error kinds onto HTTP codes; anything
// unclassified is a 500.
func serviceError(c *fiber.Ctx, err error) error {
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case pipeline.KindValidation:
			return response.ValidationError(c, perr.Message, nil)
		case pipeline.KindProvider, pipeline.KindTimeout:
			return response.ProviderError(c, perr.Message)
		}
	}
	return response.ServiceError(c, err.Error())
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
