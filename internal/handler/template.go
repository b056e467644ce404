package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/skify/api/internal/pipeline"
	"github.com/skify/api/internal/service"
	"github.com/skify/api/pkg/response"
)

type TemplateHandler struct {
	service *service.TemplateService
}

func NewTemplateHandler(svc *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{service: svc}
}

// List handles GET /api/templates
func (h *TemplateHandler) List(c *fiber.Ctx) error {
	templates, err := h.service.List(c.Context())
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, fiber.Map{"templates": templates})
}

// Get handles GET /api/templates/:templateId
func (h *TemplateHandler) Get(c *fiber.Ctx) error {
	templateID := c.Params("templateId")
	if templateID == "" {
		return response.ValidationError(c, "Template ID is required", nil)
	}

	tpl, err := h.service.Get(c.Context(), templateID)
	if err != nil {
		if errors.Is(err, pipeline.ErrTemplateNotFound) {
			return response.NotFound(c, "Template not found")
		}
		return serviceError(c, err)
	}
	return response.OK(c, tpl)
}

// Delete handles DELETE /api/templates/:templateId
func (h *TemplateHandler) Delete(c *fiber.Ctx) error {
	templateID := c.Params("templateId")
	if templateID == "" {
		return response.ValidationError(c, "Template ID is required", nil)
	}

	if err := h.service.Delete(c.Context(), templateID); err != nil {
		return serviceError(c, err)
	}
	return response.NoContent(c)
}
