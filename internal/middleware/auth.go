package middleware

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"labguard/internal/model"
)

const principalKey = "principal"

// Principal extracts the caller identity from a bearer token and stores it
// in the request locals. A missing or invalid token yields the anonymous
// principal rather than an error; handlers decide what anonymity may do.
func Principal(logger *slog.Logger, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(principalKey, resolvePrincipal(logger, secret, c.Get("Authorization")))
		return c.Next()
	}
}

func resolvePrincipal(logger *slog.Logger, secret, authHeader string) model.Principal {
	raw, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || raw == "" {
		return model.Anonymous()
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		logger.Debug("rejected bearer token", "error", err)
		return model.Anonymous()
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.Anonymous()
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return model.Anonymous()
	}

	role := model.RoleUser
	if r, _ := claims["role"].(string); r == string(model.RoleAdmin) {
		role = model.RoleAdmin
	}

	return model.Principal{ID: sub, Role: role, IsAuthenticated: true}
}

// PrincipalFromCtx returns the principal stored by the Principal middleware,
// or the anonymous principal when the middleware did not run.
func PrincipalFromCtx(c *fiber.Ctx) model.Principal {
	if p, ok := c.Locals(principalKey).(model.Principal); ok {
		return p
	}
	return model.Anonymous()
}
