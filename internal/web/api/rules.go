package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"labguard/internal/middleware"
	"labguard/internal/model"
	"labguard/internal/service"
)

type createRuleRequest struct {
	Name        string            `json:"name" validate:"required"`
	Description string            `json:"description"`
	Grants      []model.RuleGrant `json:"grants" validate:"required,min=1"`
}

func (h *Handler) CreateRule(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	var req createRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return ValidationErrorResponse(c, err)
	}

	rule, err := h.rules.Create(c.Context(), principal, service.CreateRuleParams{
		Name:        req.Name,
		Description: req.Description,
		Grants:      req.Grants,
	})
	if err != nil {
		h.logger.Error("failed to create rule", "error", err, "user_id", principal.ID)
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusCreated, rule)
}

func (h *Handler) ListRules(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	rules, err := h.rules.List(c.Context(), principal)
	if err != nil {
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusOK, rules)
}

func (h *Handler) GetRule(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid rule id")
	}

	rule, err := h.rules.Get(c.Context(), principal, id)
	if err != nil {
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusOK, rule)
}

func (h *Handler) DeleteRule(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid rule id")
	}

	if err := h.rules.Delete(c.Context(), principal, id); err != nil {
		h.logger.Error("failed to delete rule", "error", err, "rule_id", id)
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusOK, fiber.Map{"deleted": id})
}

type applyRuleRequest struct {
	ResourceID string `json:"resourceId"`
	TargetType string `json:"targetType" validate:"required,target_type"`
	TargetID   string `json:"targetId"`
}

func (h *Handler) ApplyRule(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid rule id")
	}

	var req applyRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return ValidationErrorResponse(c, err)
	}

	grants, err := h.rules.Apply(c.Context(), principal, id, service.ApplyRuleParams{
		ResourceID: req.ResourceID,
		TargetType: model.TargetType(req.TargetType),
		TargetID:   req.TargetID,
	})
	if err != nil {
		h.logger.Error("failed to apply rule", "error", err, "rule_id", id)
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusCreated, grants)
}
