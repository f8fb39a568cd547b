package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/storefront-session/internal/api/dto"
	"github.com/spec-kit/storefront-session/internal/domain"
	"github.com/spec-kit/storefront-session/internal/service"
	"github.com/spec-kit/storefront-session/internal/session"
	apperrors "github.com/spec-kit/storefront-session/pkg/util/errorutil"
)

// SessionHandler exposes the session lifecycle to the presentation layer.
type SessionHandler struct {
	sessions *service.SessionService
	guard    *session.Guard
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions *service.SessionService, guard *session.Guard) *SessionHandler {
	return &SessionHandler{sessions: sessions, guard: guard}
}

// Login handles POST /session/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.sessions.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return mapAPIError(err)
	}

	return c.JSON(fiber.Map{
		"data": dto.SessionResponse{IsAuthenticated: true, User: user},
	})
}

// Logout handles POST /session/logout. It always succeeds.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	h.sessions.Logout(c.UserContext())
	return c.JSON(fiber.Map{
		"data": dto.SessionResponse{},
	})
}

// Register handles POST /session/register.
func (h *SessionHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}

	result, err := h.sessions.Register(c.UserContext(), req.Registration)
	if err != nil {
		return mapAPIError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": result,
	})
}

// State handles GET /session.
func (h *SessionHandler) State(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"data": dto.FromState(h.sessions.State(c.UserContext())),
	})
}

// Guard handles GET /session/guard?location=...&role=... for navigation layers
// that evaluate routes themselves.
func (h *SessionHandler) Guard(c *fiber.Ctx) error {
	role, err := domain.ParseRole(c.Query("role"))
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	location := c.Query("location", "/")

	return c.JSON(fiber.Map{
		"data": h.guard.Evaluate(c.UserContext(), location, role),
	})
}
