package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestLogger logs one line per request after the handler chain ran,
// including the resolved principal when one was authenticated.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		}
		if p := PrincipalFromCtx(c); p.IsAuthenticated {
			attrs = append(attrs, "principal", p.ID)
		}
		logger.Info("request", attrs...)

		return err
	}
}
