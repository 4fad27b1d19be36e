package api

import (
	"github.com/gofiber/fiber/v2"

	"labguard/internal/middleware"
	"labguard/internal/model"
	"labguard/internal/service"
)

func (h *Handler) GetResourceConfig(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	rt := model.ResourceType(c.Params("resourceType"))
	resourceID := c.Params("resourceId")
	if !model.ValidResourceType(rt) {
		return ErrorResponse(c, fiber.StatusBadRequest, "unknown resource type")
	}

	cfg, err := h.shares.Load(c.Context(), principal, rt, resourceID)
	if err != nil {
		h.logger.Error("failed to load resource config", "error", err,
			"resource_type", rt, "resource_id", resourceID)
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusOK, cfg)
}

type updateResourceConfigRequest struct {
	ResourceName  string             `json:"resourceName"`
	IsPublic      *bool              `json:"isPublic"`
	Users         []model.ShareEntry `json:"users"`
	Teams         []model.ShareEntry `json:"teams"`
	Organizations []model.ShareEntry `json:"organizations"`
}

// UpdateResourceConfig answers PUT /api/permissions/resources/:resourceType/:resourceId.
// Absent categories are left untouched; present ones replace the stored list
// wholesale.
func (h *Handler) UpdateResourceConfig(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	rt := model.ResourceType(c.Params("resourceType"))
	resourceID := c.Params("resourceId")
	if !model.ValidResourceType(rt) {
		return ErrorResponse(c, fiber.StatusBadRequest, "unknown resource type")
	}

	var req updateResourceConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := h.shares.Update(c.Context(), principal, rt, resourceID, service.UpdateShareParams{
		ResourceName: req.ResourceName,
		Patch: model.SharePatch{
			IsPublic:      req.IsPublic,
			Users:         req.Users,
			Teams:         req.Teams,
			Organizations: req.Organizations,
		},
	})
	if err != nil {
		h.logger.Error("failed to update resource config", "error", err,
			"resource_type", rt, "resource_id", resourceID)
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusOK, cfg)
}
