package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-session/internal/apiclient"
	"github.com/spec-kit/storefront-session/internal/config"
	"github.com/spec-kit/storefront-session/internal/domain"
	"github.com/spec-kit/storefront-session/internal/events"
	"github.com/spec-kit/storefront-session/internal/observability"
	"github.com/spec-kit/storefront-session/internal/session"
	apperrors "github.com/spec-kit/storefront-session/pkg/util/errorutil"
)

// ErrSuperseded is returned by Login when a logout ran while the login call
// was in flight. The login result is discarded and the session stays logged out.
var ErrSuperseded = errors.New("session ended while login was in flight")

// AuthAPI is the subset of the backend the coordinator needs.
type AuthAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.LoginResult, error)
	Logout(ctx context.Context) error
	VerifyToken(ctx context.Context) error
	Register(ctx context.Context, reg domain.Registration) (*apiclient.RegisterResult, error)
}

// SessionDependencies encapsulates collaborators for the session service.
type SessionDependencies struct {
	Store     *session.Store
	Evaluator *session.Evaluator
	API       AuthAPI
	Events    events.Dispatcher
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// SessionService coordinates login, logout and startup rehydration.
//
// Mutations of the store happen under mu; network calls never do. epoch is
// bumped by every logout so that results of calls started earlier can be
// recognised as stale and dropped.
type SessionService struct {
	mu    sync.Mutex
	epoch uint64

	store           *session.Store
	evaluator       *session.Evaluator
	api             AuthAPI
	events          events.Dispatcher
	metrics         *observability.Metrics
	log             *zap.Logger
	verifyOnStartup bool

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSessionService builds the service.
func NewSessionService(cfg config.APIConfig, deps SessionDependencies) *SessionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Events
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &SessionService{
		store:           deps.Store,
		evaluator:       deps.Evaluator,
		api:             deps.API,
		events:          dispatcher,
		metrics:         deps.Metrics,
		log:             logger,
		verifyOnStartup: cfg.VerifyOnStartup,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once Rehydrate has finished, successfully or not.
func (s *SessionService) Ready() <-chan struct{} {
	return s.ready
}

func (s *SessionService) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *SessionService) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// State derives the session state from the store. A session whose profile
// lacks a usable role is reported as unauthenticated.
func (s *SessionService) State(ctx context.Context) domain.SessionState {
	if !s.evaluator.IsAuthenticated(ctx) {
		return domain.SessionState{}
	}
	_, user := s.store.Snapshot(ctx)
	if !user.HasRole() {
		return domain.SessionState{}
	}
	return domain.SessionState{Authenticated: true, User: user}
}

// Login authenticates against the backend and persists token and profile
// together. On failure nothing is stored.
func (s *SessionService) Login(ctx context.Context, username, password string) (*domain.UserProfile, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.NewValidationError("username and password required", nil)
	}

	epoch := s.currentEpoch()
	result, err := s.api.Login(ctx, domain.Credentials{Username: username, Password: password})
	if err != nil {
		s.metrics.RecordSession("login_failed")
		s.log.Info("login failed", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.metrics.RecordSession("login_superseded")
		return nil, ErrSuperseded
	}
	err = s.store.Save(ctx, result.AccessToken, result.User)
	s.mu.Unlock()
	if err != nil {
		s.metrics.RecordSession("login_failed")
		return nil, apperrors.NewInternalError(err)
	}

	s.metrics.RecordSession("login_ok")
	s.log.Info("logged in", zap.String("username", result.User.Username), zap.String("role", string(result.User.Role)))
	s.publish(ctx, events.EventLoggedIn, result.User, "")
	return result.User, nil
}

// Logout notifies the backend when a session is active, then always clears
// local state. A backend failure is logged and otherwise ignored.
func (s *SessionService) Logout(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()

	_, user := s.store.Snapshot(ctx)
	if s.evaluator.IsAuthenticated(ctx) {
		if err := s.api.Logout(ctx); err != nil {
			s.metrics.RecordSession("logout_notify_failed")
			s.log.Warn("logout notification failed", zap.Error(err))
		}
	}

	// Clearing must not be skipped because the caller's context ended.
	clearCtx := context.WithoutCancel(ctx)
	s.mu.Lock()
	err := s.store.RemoveToken(clearCtx)
	s.mu.Unlock()
	if err != nil {
		s.log.Error("clear session on logout", zap.Error(err))
	}

	s.metrics.RecordSession("logout")
	s.publish(clearCtx, events.EventLoggedOut, user, "")
}

// Rehydrate restores the session at startup and opens the ready gate when
// done. A locally valid session is confirmed with the backend when
// verification is enabled; any verification failure logs the session out.
func (s *SessionService) Rehydrate(ctx context.Context) error {
	defer s.markReady()

	epoch := s.currentEpoch()
	if err := s.evaluator.Check(ctx); err != nil {
		if !errors.Is(err, session.ErrNoToken) {
			s.metrics.RecordSession("expired")
			s.publish(ctx, events.EventExpired, nil, err.Error())
		}
		return nil
	}

	token, user := s.store.Snapshot(ctx)
	if user == nil {
		s.log.Warn("stored token has no profile; clearing")
		if s.clearIfCurrent(ctx, epoch, token) {
			s.publish(ctx, events.EventRejected, nil, "missing profile")
		}
		return nil
	}

	if !s.verifyOnStartup {
		s.metrics.RecordSession("rehydrate_ok")
		return nil
	}

	if err := s.api.VerifyToken(ctx); err != nil {
		s.metrics.RecordSession("rehydrate_rejected")
		s.log.Info("stored session rejected by backend", zap.Error(err))
		// A 401 has usually been handled already through the client hook.
		if s.clearIfCurrent(context.WithoutCancel(ctx), epoch, token) {
			s.publish(ctx, events.EventRejected, user, apiclient.UserMessage(err))
		}
		return err
	}

	s.metrics.RecordSession("rehydrate_ok")
	return nil
}

// clearIfCurrent clears the session unless a logout or a new login happened
// since epoch was read.
func (s *SessionService) clearIfCurrent(ctx context.Context, epoch uint64, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	cleared, _ := s.store.RemoveTokenIf(ctx, token)
	return cleared
}

// HandleUnauthorized is the application-wide reaction to a backend 401 for
// token. The session is cleared only while token is still the stored one, so
// a late rejection of an old token never ends a newer session.
func (s *SessionService) HandleUnauthorized(ctx context.Context, token string) {
	if token == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	_, user := s.store.Snapshot(ctx)
	cleared, _ := s.store.RemoveTokenIf(ctx, token)
	s.mu.Unlock()

	if !cleared {
		return
	}
	s.metrics.RecordSession("rejected")
	s.log.Info("backend rejected token; session cleared")
	s.publish(ctx, events.EventRejected, user, "unauthorized")
}

// CheckExpiry runs the evaluator and reports a session that has just been
// cleared because its token expired or could not be decoded.
func (s *SessionService) CheckExpiry(ctx context.Context) bool {
	_, user := s.store.Snapshot(ctx)
	err := s.evaluator.Check(ctx)
	if err == nil || errors.Is(err, session.ErrNoToken) {
		return false
	}
	s.metrics.RecordSession("expired")
	s.publish(ctx, events.EventExpired, user, err.Error())
	return true
}

// Register creates an account on the backend. The caller still has to log in.
func (s *SessionService) Register(ctx context.Context, reg domain.Registration) (*apiclient.RegisterResult, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Username == "" || reg.Password == "" || reg.Email == "" {
		return nil, apperrors.NewValidationError("user_name, email and password required", nil)
	}
	if !reg.Role.Valid() {
		return nil, apperrors.NewValidationError("role must be customer, seller or admin", map[string]any{"role": reg.Role})
	}
	return s.api.Register(ctx, reg)
}

func (s *SessionService) publish(ctx context.Context, t events.EventType, user *domain.UserProfile, reason string) {
	err := s.events.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      t,
		User:      user,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	})
	if err != nil {
		s.log.Warn("session event handler failed", zap.String("event", string(t)), zap.Error(err))
	}
}
