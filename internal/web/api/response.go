package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	validatorv10 "github.com/go-playground/validator/v10"

	"labguard/internal/service"
)

// Every endpoint answers the same envelope: {"success": true, "data": ...}
// or {"success": false, "message": ...}.

func SuccessResponse(c *fiber.Ctx, code int, data any) error {
	return c.Status(code).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func ErrorResponse(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// ServiceErrorResponse maps service sentinels onto HTTP statuses. Unknown
// errors become opaque 500s; details stay in the log.
func ServiceErrorResponse(c *fiber.Ctx, err error) error {
	var validationErr *service.ConfigValidationError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return ErrorResponse(c, fiber.StatusUnauthorized, "authentication required")
	case errors.Is(err, service.ErrForbidden):
		return ErrorResponse(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrNotFound):
		return ErrorResponse(c, fiber.StatusNotFound, "not found")
	case errors.Is(err, service.ErrRuleBuiltIn):
		return ErrorResponse(c, fiber.StatusConflict, "built-in rule cannot be deleted")
	case errors.Is(err, service.ErrRateLimited):
		return ErrorResponse(c, fiber.StatusTooManyRequests, "too many requests")
	case errors.As(err, &validationErr):
		return ErrorResponse(c, fiber.StatusUnprocessableEntity, validationErr.Error())
	default:
		return ErrorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}
}

// ValidationErrorResponse renders validator/v10 failures as a 400 with the
// first offending field named.
func ValidationErrorResponse(c *fiber.Ctx, err error) error {
	var fieldErrs validatorv10.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid field: "+fieldErrs[0].Field())
	}
	return ErrorResponse(c, fiber.StatusBadRequest, "invalid request")
}
