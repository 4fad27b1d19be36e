// Package api exposes the permission engine over HTTP. All responses use the
// {success, data} envelope the consumer-side oracle client decodes.
package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"labguard/internal/service"
	"labguard/internal/validator"
)

// Pinger is the liveness probe dependency, satisfied by *database.Database.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	logger    *slog.Logger
	validator *validator.Validator
	db        Pinger
	perms     *service.PermissionService
	shares    *service.ShareService
	rules     *service.RuleService
	teams     *service.TeamService
}

func NewHandler(logger *slog.Logger, v *validator.Validator, db Pinger, perms *service.PermissionService, shares *service.ShareService, rules *service.RuleService, teams *service.TeamService) *Handler {
	return &Handler{
		logger:    logger.With("component", "api"),
		validator: v,
		db:        db,
		perms:     perms,
		shares:    shares,
		rules:     rules,
		teams:     teams,
	}
}

// RegisterRoutes mounts every endpoint under /api. The principal middleware
// must already be installed on the app.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	apiGroup := app.Group("/api")
	apiGroup.Get("/health", h.Health)

	permissions := apiGroup.Group("/permissions")
	permissions.Get("/check", h.CheckPermission)
	permissions.Get("/user", h.UserPermissions)
	permissions.Post("/", h.CreatePermission)
	permissions.Delete("/:id", h.RevokePermission)

	permissions.Post("/rules", h.CreateRule)
	permissions.Get("/rules", h.ListRules)
	permissions.Get("/rules/:id", h.GetRule)
	permissions.Delete("/rules/:id", h.DeleteRule)
	permissions.Post("/rules/:id/apply", h.ApplyRule)

	permissions.Get("/resources/:resourceType/:resourceId", h.GetResourceConfig)
	permissions.Put("/resources/:resourceType/:resourceId", h.UpdateResourceConfig)

	apiGroup.Get("/teams/:teamId/actions", h.TeamActions)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.db.Ping(c.Context()); err != nil {
		h.logger.Error("database connection failed", "error", err)
		return ErrorResponse(c, fiber.StatusServiceUnavailable, "database connection failed")
	}
	return SuccessResponse(c, fiber.StatusOK, fiber.Map{"status": "healthy"})
}
