package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"labguard/internal/middleware"
	"labguard/internal/model"
	"labguard/internal/service"
)

// CheckPermission answers GET /api/permissions/check. It always returns 200
// with a verdict; a failed resolution is a denial, not a 5xx, so consumers
// can treat the body as authoritative.
func (h *Handler) CheckPermission(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	rt := model.ResourceType(c.Query("resourceType"))
	action := model.Action(c.Query("action"))
	resourceID := c.Query("resourceId")
	if rt == "" || action == "" {
		return ErrorResponse(c, fiber.StatusBadRequest, "resourceType and action are required")
	}

	evalCtx := model.EvalContext{
		Now:      time.Now(),
		ClientIP: c.IP(),
		DeviceID: c.Get("X-Device-Id"),
	}

	result, err := h.perms.Check(c.Context(), principal, rt, action, resourceID, evalCtx)
	if err != nil {
		h.logger.Error("permission check failed", "error", err,
			"resource_type", rt, "action", action, "resource_id", resourceID)
	}
	return SuccessResponse(c, fiber.StatusOK, result)
}

// UserPermissions answers GET /api/permissions/user with every grant
// reaching the caller. This is the snapshot source for consumer caches.
func (h *Handler) UserPermissions(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	grants, err := h.perms.UserGrants(c.Context(), principal)
	if err != nil {
		h.logger.Error("failed to aggregate user grants", "error", err, "user_id", principal.ID)
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusOK, grants)
}

type createPermissionRequest struct {
	ResourceType string            `json:"resourceType" validate:"required,resource_type"`
	ResourceID   string            `json:"resourceId"`
	Action       string            `json:"action" validate:"required,permission_action"`
	TargetType   string            `json:"targetType" validate:"required,target_type"`
	TargetID     string            `json:"targetId"`
	Conditions   []model.Condition `json:"conditions"`
	ExpiresAt    *time.Time        `json:"expiresAt"`
}

func (h *Handler) CreatePermission(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	var req createPermissionRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return ValidationErrorResponse(c, err)
	}

	grant, err := h.perms.Grant(c.Context(), principal, service.GrantParams{
		ResourceType: model.ResourceType(req.ResourceType),
		ResourceID:   req.ResourceID,
		Action:       model.Action(req.Action),
		TargetType:   model.TargetType(req.TargetType),
		TargetID:     req.TargetID,
		Conditions:   req.Conditions,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		h.logger.Error("failed to create permission", "error", err, "user_id", principal.ID)
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusCreated, grant)
}

func (h *Handler) RevokePermission(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid permission id")
	}

	if err := h.perms.Revoke(c.Context(), principal, id); err != nil {
		h.logger.Error("failed to revoke permission", "error", err,
			"permission_id", id, "user_id", principal.ID)
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusOK, fiber.Map{"revoked": id})
}
