package session

import (
	"context"
	"net/http"
)

// AuthorizationHeader is the header carrying the bearer token.
const AuthorizationHeader = "Authorization"

// AuthHeader returns {} without a token, else exactly one Authorization entry.
func (s *Store) AuthHeader(ctx context.Context) map[string]string {
	token, ok := s.Token(ctx)
	if !ok {
		return map[string]string{}
	}
	return map[string]string{AuthorizationHeader: "Bearer " + token}
}

// ApplyAuth sets the Authorization header on req when a token is stored.
func (s *Store) ApplyAuth(ctx context.Context, req *http.Request) {
	for k, v := range s.AuthHeader(ctx) {
		req.Header.Set(k, v)
	}
}
