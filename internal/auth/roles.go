package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/storefront-session/internal/domain"
)

// RequireSession admits any caller with a valid session.
func (m *GuardMiddleware) RequireSession() fiber.Handler {
	return m.Handle("")
}

// RequireCustomer admits customers only.
func (m *GuardMiddleware) RequireCustomer() fiber.Handler {
	return m.Handle(domain.RoleCustomer)
}

// RequireAdmin admits admins only.
func (m *GuardMiddleware) RequireAdmin() fiber.Handler {
	return m.Handle(domain.RoleAdmin)
}
