package auth

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/storefront-session/internal/domain"
	"github.com/spec-kit/storefront-session/internal/observability"
	"github.com/spec-kit/storefront-session/internal/session"
	apperrors "github.com/spec-kit/storefront-session/pkg/util/errorutil"
)

const decisionKey = "session_decision"

// DefaultLoginPath is where anonymous browsers are sent.
const DefaultLoginPath = "/login"

// GuardMiddleware turns route guard decisions into HTTP responses.
type GuardMiddleware struct {
	guard     *session.Guard
	metrics   *observability.Metrics
	loginPath string
}

// NewGuardMiddleware constructs middleware.
func NewGuardMiddleware(guard *session.Guard, metrics *observability.Metrics, loginPath string) *GuardMiddleware {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &GuardMiddleware{guard: guard, metrics: metrics, loginPath: loginPath}
}

// LoginRedirect builds the login URL that returns the user to from afterwards.
func (m *GuardMiddleware) LoginRedirect(from string) string {
	if from == "" {
		return m.loginPath
	}
	return m.loginPath + "?from=" + url.QueryEscape(from)
}

// Handle admits the request when the guard allows it for role. Anonymous
// browsers are redirected to login; API callers get 401 with the redirect
// target. A wrong role is answered in place with 403 so the caller can tell
// "log in" apart from "not permitted".
func (m *GuardMiddleware) Handle(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d := m.guard.Evaluate(c.UserContext(), c.OriginalURL(), role)
		m.metrics.RecordSession("guard_" + d.Result)

		switch d.Outcome {
		case session.Allowed:
			c.Locals(decisionKey, d)
			return c.Next()
		case session.RedirectLogin:
			target := m.LoginRedirect(d.From)
			if wantsHTML(c) {
				return c.Redirect(target, fiber.StatusFound)
			}
			return apperrors.NewDomainError("UNAUTHORIZED", "login required", fiber.StatusUnauthorized,
				map[string]any{"redirect": target})
		case session.RedirectUnauthorized:
			return apperrors.NewForbidden("access denied", map[string]any{
				"required_role": d.RequiredRole,
				"actual_role":   d.ActualRole,
			})
		default:
			return apperrors.NewNotReady("session is still loading")
		}
	}
}

// DecisionFromContext retrieves the guard decision for an admitted request.
func DecisionFromContext(c *fiber.Ctx) (session.Decision, bool) {
	val := c.Locals(decisionKey)
	if val == nil {
		return session.Decision{}, false
	}
	d, ok := val.(session.Decision)
	return d, ok
}

func wantsHTML(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMETextHTML)
}
