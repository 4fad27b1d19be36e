package api

import (
	"github.com/gofiber/fiber/v2"

	"labguard/internal/middleware"
)

// TeamActions answers GET /api/teams/:teamId/actions with the effective
// action list for the caller in that team.
func (h *Handler) TeamActions(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	actions, err := h.teams.Actions(c.Context(), principal, c.Params("teamId"))
	if err != nil {
		h.logger.Error("failed to resolve team actions", "error", err,
			"team_id", c.Params("teamId"), "user_id", principal.ID)
		return ServiceErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.StatusOK, fiber.Map{"actions": actions})
}
