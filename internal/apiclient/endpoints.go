package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/spec-kit/storefront-session/internal/domain"
)

// ErrMalformedLogin is returned when a 2xx login reply lacks token or user.
var ErrMalformedLogin = errors.New("login response missing access_token or user")

// Login exchanges credentials for an access token and profile.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.LoginResult, error) {
	var result domain.LoginResult
	if err := c.do(ctx, call{method: http.MethodPost, path: "/auth/login", body: creds, out: &result, public: true}); err != nil {
		return nil, err
	}
	if result.AccessToken == "" || result.User == nil {
		return nil, ErrMalformedLogin
	}
	return &result, nil
}

// Logout tells the backend the session is over.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/auth/logout"})
}

// VerifyToken asks the backend whether the current token is still accepted.
func (c *Client) VerifyToken(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodGet, path: "/auth/verify-token"})
}

// RegisterResult is the backend's reply to a registration.
type RegisterResult struct {
	Message string          `json:"message"`
	UserID  json.RawMessage `json:"user_id"`
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, reg domain.Registration) (*RegisterResult, error) {
	var result RegisterResult
	if err := c.do(ctx, call{method: http.MethodPost, path: "/auth/register", body: reg, out: &result, public: true}); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) postRaw(ctx context.Context, path string, body json.RawMessage) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodPost, path, body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Cart fetches the caller's cart.
func (c *Client) Cart(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/cart")
}

// AddToCart posts an item to the caller's cart.
func (c *Client) AddToCart(ctx context.Context, item json.RawMessage) (json.RawMessage, error) {
	return c.postRaw(ctx, "/cart/items", item)
}

// Orders fetches the caller's order history.
func (c *Client) Orders(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/orders")
}

// PlaceOrder submits an order.
func (c *Client) PlaceOrder(ctx context.Context, order json.RawMessage) (json.RawMessage, error) {
	return c.postRaw(ctx, "/orders", order)
}

// Products lists the catalogue.
func (c *Client) Products(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/products")
}

// Product fetches one product.
func (c *Client) Product(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, "/products/"+url.PathEscape(id))
}

// Categories lists product categories.
func (c *Client) Categories(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/categories")
}
