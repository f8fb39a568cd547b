package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/storefront-session/internal/auth"
	"github.com/spec-kit/storefront-session/internal/domain"
	"github.com/spec-kit/storefront-session/internal/persistence"
	"github.com/spec-kit/storefront-session/internal/session"
	apperrors "github.com/spec-kit/storefront-session/pkg/util/errorutil"
)

type openGate chan struct{}

func (g openGate) Ready() <-chan struct{} { return g }

func newApp(t *testing.T, gate session.Gate, loginPath string) (*fiber.App, *session.Store) {
	t.Helper()
	store := session.NewStore(persistence.NewMemoryBackend(), nil)
	guard := session.NewGuard(store, session.NewEvaluator(store, nil), gate, nil)
	mw := auth.NewGuardMiddleware(guard, nil, loginPath)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Use(func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 50*time.Millisecond)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})
	app.Get("/account", mw.RequireSession(), func(c *fiber.Ctx) error {
		d, ok := auth.DecisionFromContext(c)
		require.True(t, ok)
		return c.SendString(d.Result)
	})
	app.Get("/admin", mw.RequireAdmin(), func(c *fiber.Ctx) error { return c.SendString("admin") })
	return app, store
}

func login(t *testing.T, store *session.Store, role domain.Role) {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), tok, &domain.UserProfile{ID: "1", Username: "u", Role: role}))
}

func get(t *testing.T, app *fiber.App, path string, accept string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestLoginRedirect(t *testing.T) {
	mw := auth.NewGuardMiddleware(nil, nil, "")
	assert.Equal(t, "/login", mw.LoginRedirect(""))
	assert.Equal(t, "/login?from=%2Forders%3Fpage%3D2", mw.LoginRedirect("/orders?page=2"))

	custom := auth.NewGuardMiddleware(nil, nil, "/signin")
	assert.Equal(t, "/signin?from=%2Fcart", custom.LoginRedirect("/cart"))
}

func TestGuardMiddleware_Outcomes(t *testing.T) {
	gate := make(openGate)
	close(gate)
	app, store := newApp(t, gate, "/signin")

	resp := get(t, app, "/account?tab=orders", "text/html")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/signin?from=%2Faccount%3Ftab%3Dorders", resp.Header.Get("Location"))

	resp = get(t, app, "/account", "application/json")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	login(t, store, domain.RoleSeller)
	resp = get(t, app, "/account", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, app, "/admin", "text/html")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	login(t, store, domain.RoleAdmin)
	resp = get(t, app, "/admin", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGuardMiddleware_NotReady(t *testing.T) {
	app, _ := newApp(t, make(openGate), "")

	resp := get(t, app, "/account", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
