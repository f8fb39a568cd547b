package session

import (
	"context"
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Evaluator decides locally whether the stored token is still usable.
//
// Only structure and expiry are checked. The signature is never verified here:
// the backend is the authority and rejects bad tokens with 401 on every call.
type Evaluator struct {
	store  *Store
	parser *jwt.Parser
	now    func() time.Time
	log    *zap.Logger
}

// EvaluatorOption customises an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator builds an evaluator over store.
func NewEvaluator(store *Store, logger *zap.Logger, opts ...EvaluatorOption) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{
		store:  store,
		parser: jwt.NewParser(),
		now:    time.Now,
		log:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ErrExpired is returned by Check for a token whose exp is in the past.
var ErrExpired = errors.New("session: token expired")

// ErrNoToken is returned by Check when nothing is stored.
var ErrNoToken = errors.New("session: no token")

// Expiry decodes the exp claim of token. A token without exp has no expiry.
func (e *Evaluator) Expiry(token string) (time.Time, bool, error) {
	claims := jwt.MapClaims{}
	if _, _, err := e.parser.ParseUnverified(token, claims); err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return time.Time{}, false, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, false, err
	}
	if exp == nil {
		return time.Time{}, false, nil
	}
	return exp.Time, true, nil
}

// Check reports why the stored token is unusable, or nil when it is usable.
// Malformed or expired tokens are cleared from the store.
func (e *Evaluator) Check(ctx context.Context) error {
	token, ok := e.store.Token(ctx)
	if !ok {
		return ErrNoToken
	}

	exp, hasExp, err := e.Expiry(token)
	if err != nil {
		e.log.Info("clearing undecodable token", zap.Error(err))
		_, _ = e.store.RemoveTokenIf(ctx, token)
		return err
	}
	if hasExp && exp.Before(e.now()) {
		e.log.Info("clearing expired token", zap.Time("exp", exp))
		_, _ = e.store.RemoveTokenIf(ctx, token)
		return ErrExpired
	}
	return nil
}

// IsAuthenticated reports whether a decodable, unexpired token is stored.
func (e *Evaluator) IsAuthenticated(ctx context.Context) bool {
	return e.Check(ctx) == nil
}
