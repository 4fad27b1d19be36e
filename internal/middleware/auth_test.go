package middleware_test

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labguard/internal/middleware"
	"labguard/internal/model"
)

const testSecret = "test-secret"

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.Principal(slog.New(slog.DiscardHandler), testSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(middleware.PrincipalFromCtx(c))
	})
	return app
}

func resolve(t *testing.T, app *fiber.App, authHeader string) model.Principal {
	t.Helper()

	req := httptest.NewRequest("GET", "/whoami", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var p model.Principal
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestPrincipalFromValidToken(t *testing.T) {
	app := newApp()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	p := resolve(t, app, "Bearer "+token)

	assert.True(t, p.IsAuthenticated)
	assert.Equal(t, "alice", p.ID)
	assert.Equal(t, model.RoleUser, p.Role)
}

func TestPrincipalAdminRoleClaim(t *testing.T) {
	app := newApp()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "root",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	p := resolve(t, app, "Bearer "+token)

	assert.True(t, p.IsAdmin())

	// Unknown role strings degrade to user, never to admin.
	token = signToken(t, testSecret, jwt.MapClaims{
		"sub":  "mallory",
		"role": "superadmin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	p = resolve(t, app, "Bearer "+token)
	assert.Equal(t, model.RoleUser, p.Role)
}

func TestPrincipalMissingTokenIsAnonymous(t *testing.T) {
	app := newApp()

	p := resolve(t, app, "")

	assert.False(t, p.IsAuthenticated)
	assert.Empty(t, p.ID)
}

func TestPrincipalBadSignatureIsAnonymous(t *testing.T) {
	app := newApp()
	token := signToken(t, "some-other-secret", jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	p := resolve(t, app, "Bearer "+token)

	assert.False(t, p.IsAuthenticated)
}

func TestPrincipalRejectsNonHMACAlgorithm(t *testing.T) {
	app := newApp()
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	p := resolve(t, app, "Bearer "+token)

	assert.False(t, p.IsAuthenticated)
}

func TestPrincipalMissingSubjectIsAnonymous(t *testing.T) {
	app := newApp()
	token := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	p := resolve(t, app, "Bearer "+token)

	assert.False(t, p.IsAuthenticated)
}

func TestPrincipalExpiredTokenIsAnonymous(t *testing.T) {
	app := newApp()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	p := resolve(t, app, "Bearer "+token)

	assert.False(t, p.IsAuthenticated)
}
