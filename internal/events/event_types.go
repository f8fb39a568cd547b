package events

import (
	"time"

	"github.com/spec-kit/storefront-session/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLoggedIn  EventType = "session_logged_in"
	EventLoggedOut EventType = "session_logged_out"
	EventExpired   EventType = "session_expired"
	// EventRejected is published when the backend refused the token (401 or a
	// failed verify during rehydrate).
	EventRejected EventType = "session_rejected"
)

// Event represents a session state transition.
type Event struct {
	ID        string              `json:"id"`
	Type      EventType           `json:"type"`
	User      *domain.UserProfile `json:"user,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	Reason    string              `json:"reason,omitempty"`
}
