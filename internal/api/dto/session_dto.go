package dto

import (
	"encoding/json"

	"github.com/spec-kit/storefront-session/internal/domain"
)

// LoginRequest payload for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest carries the registration form. Fields beyond the common
// ones (address, store_name, permissions...) are forwarded untouched.
type RegisterRequest struct {
	domain.Registration
}

// UnmarshalJSON splits the known fields from the role-specific extras.
func (r *RegisterRequest) UnmarshalJSON(data []byte) error {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	take := func(key string) string {
		v, _ := all[key].(string)
		delete(all, key)
		return v
	}

	role, err := domain.ParseRole(take("role"))
	if err != nil {
		return err
	}
	username := take("user_name")
	if alt := take("username"); username == "" {
		username = alt
	}

	r.Registration = domain.Registration{
		FirstName: take("first_name"),
		LastName:  take("last_name"),
		Username:  username,
		Email:     take("email"),
		Password:  take("password"),
		Role:      role,
		Extra:     all,
	}
	return nil
}

// SessionResponse is the gateway's view of the current session.
type SessionResponse struct {
	IsAuthenticated bool                `json:"is_authenticated"`
	User            *domain.UserProfile `json:"user"`
}

// FromState converts a derived session state.
func FromState(s domain.SessionState) SessionResponse {
	return SessionResponse{IsAuthenticated: s.Authenticated, User: s.User}
}
