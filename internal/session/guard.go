package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/storefront-session/internal/domain"
)

// Outcome is the result of a guard evaluation.
type Outcome int

const (
	Unevaluated Outcome = iota
	Allowed
	RedirectLogin
	RedirectUnauthorized
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	default:
		return "unevaluated"
	}
}

// Decision carries the outcome plus what the navigation layer needs to act on it.
type Decision struct {
	Outcome      Outcome     `json:"-"`
	Result       string      `json:"outcome"`
	From         string      `json:"from,omitempty"`
	RequiredRole domain.Role `json:"required_role,omitempty"`
	ActualRole   domain.Role `json:"actual_role,omitempty"`
}

func decide(o Outcome, from string) Decision {
	return Decision{Outcome: o, Result: o.String(), From: from}
}

// Gate is closed once startup rehydration has finished.
type Gate interface {
	Ready() <-chan struct{}
}

// Guard decides whether a protected location may be shown.
type Guard struct {
	store     *Store
	evaluator *Evaluator
	gate      Gate
	log       *zap.Logger
}

// NewGuard builds a guard. A nil gate evaluates immediately.
func NewGuard(store *Store, evaluator *Evaluator, gate Gate, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, evaluator: evaluator, gate: gate, log: logger}
}

// Evaluate blocks until the gate opens, then classifies the request for
// location. An empty required role only demands a valid session. If ctx ends
// before the gate opens the decision is Unevaluated.
func (g *Guard) Evaluate(ctx context.Context, location string, required domain.Role) Decision {
	if g.gate != nil {
		select {
		case <-g.gate.Ready():
		case <-ctx.Done():
			return decide(Unevaluated, location)
		}
	}

	if !g.evaluator.IsAuthenticated(ctx) {
		return decide(RedirectLogin, location)
	}
	if required == "" {
		return decide(Allowed, "")
	}

	token, user := g.store.Snapshot(ctx)
	if !user.HasRole() {
		// Token without a usable profile is a corrupted session.
		g.log.Warn("clearing session without profile role", zap.String("location", location))
		_, _ = g.store.RemoveTokenIf(ctx, token)
		return decide(RedirectLogin, location)
	}

	if user.Role != required {
		d := decide(RedirectUnauthorized, "")
		d.RequiredRole = required
		d.ActualRole = user.Role
		return d
	}
	return decide(Allowed, "")
}
