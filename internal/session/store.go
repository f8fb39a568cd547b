package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/storefront-session/internal/domain"
	"github.com/spec-kit/storefront-session/internal/persistence"
)

// Keys under which the token and the JSON profile are persisted.
const (
	TokenKey = "emporia_access_token"
	UserKey  = "emporia_user"
)

// Store owns the persisted access token and user profile.
//
// Read failures from the backend are logged and reported as absence so that a
// broken store always looks logged out.
type Store struct {
	mu      sync.RWMutex
	backend persistence.Backend
	log     *zap.Logger
}

// NewStore wraps a persistence backend.
func NewStore(backend persistence.Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, log: logger}
}

// SetToken persists the access token.
func (s *Store) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.SetMany(ctx, map[string]string{TokenKey: token})
}

// Token returns the stored access token.
func (s *Store) Token(ctx context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token(ctx)
}

func (s *Store) token(ctx context.Context) (string, bool) {
	token, ok, err := s.backend.Get(ctx, TokenKey)
	if err != nil {
		s.log.Warn("read token", zap.Error(err))
		return "", false
	}
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// SetUser persists the profile as JSON.
func (s *Store) SetUser(ctx context.Context, user *domain.UserProfile) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.SetMany(ctx, map[string]string{UserKey: string(raw)})
}

// User returns the stored profile. A missing or undecodable entry yields false.
func (s *Store) User(ctx context.Context) (*domain.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user(ctx)
}

func (s *Store) user(ctx context.Context) (*domain.UserProfile, bool) {
	raw, ok, err := s.backend.Get(ctx, UserKey)
	if err != nil {
		s.log.Warn("read user", zap.Error(err))
		return nil, false
	}
	if !ok || raw == "" {
		return nil, false
	}
	var user domain.UserProfile
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.log.Warn("stored user is not valid json", zap.Error(err))
		return nil, false
	}
	return &user, true
}

// Save writes token and profile in one backend call.
func (s *Store) Save(ctx context.Context, token string, user *domain.UserProfile) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.SetMany(ctx, map[string]string{TokenKey: token, UserKey: string(raw)})
}

// Snapshot reads token and profile under one lock so the pair is consistent.
func (s *Store) Snapshot(ctx context.Context) (string, *domain.UserProfile) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, _ := s.token(ctx)
	user, _ := s.user(ctx)
	return token, user
}

// RemoveToken clears the token and the profile together.
func (s *Store) RemoveToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.DeleteMany(ctx, TokenKey, UserKey); err != nil {
		s.log.Error("clear session store", zap.Error(err))
		return err
	}
	return nil
}

// RemoveTokenIf clears the session only while token is still the stored one,
// so a check racing with a fresh login never wipes the new session.
// It reports whether anything was cleared.
func (s *Store) RemoveTokenIf(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.token(ctx); !ok || current != token {
		return false, nil
	}
	if err := s.backend.DeleteMany(ctx, TokenKey, UserKey); err != nil {
		s.log.Error("clear session store", zap.Error(err))
		return false, err
	}
	return true, nil
}

// Ping checks the backing storage.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}
