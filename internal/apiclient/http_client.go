package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader   = "X-Request-ID"
	ContentTypeHeader = "Content-Type"
	jsonContentType   = "application/json"

	maxResponseBytes = 4 << 20
)

// AuthSource supplies the outbound authorization header.
type AuthSource interface {
	AuthHeader(ctx context.Context) map[string]string
}

// UnauthorizedFunc is called whenever a protected call comes back 401.
// token is the bearer token the rejected request carried, empty if none.
type UnauthorizedFunc func(ctx context.Context, token string)

// Config holds configuration for the backend client.
type Config struct {
	// BaseURL is the storefront API root, without trailing slash.
	BaseURL string
	// Timeout bounds every call. A timed-out call is a failure.
	Timeout time.Duration
}

// Client talks JSON to the storefront backend.
type Client struct {
	httpClient     *http.Client
	cfg            Config
	auth           AuthSource
	onUnauthorized UnauthorizedFunc
	log            *zap.Logger
}

// New creates a Client. If httpClient is nil, http.DefaultClient is used.
func New(cfg Config, auth AuthSource, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		auth:       auth,
		log:        logger,
	}
}

// OnUnauthorized registers the application-wide 401 handler.
func (c *Client) OnUnauthorized(fn UnauthorizedFunc) {
	c.onUnauthorized = fn
}

type call struct {
	method string
	path   string
	body   any
	out    any
	// public calls (login, register) report 401 as a plain API error with the
	// backend message instead of tearing down the session.
	public bool
}

// Do performs an authenticated JSON call against path and decodes the reply into out.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, call{method: method, path: path, body: body, out: out})
}

func (c *Client) do(ctx context.Context, cl call) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if cl.body != nil {
		raw, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.cfg.BaseURL+cl.path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(ContentTypeHeader, jsonContentType)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if c.auth != nil {
		for k, v := range c.auth.AuthHeader(ctx) {
			req.Header.Set(k, v)
		}
	}

	sentToken := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("api request failed",
			zap.String("method", cl.method), zap.String("path", cl.path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(payload) > maxResponseBytes {
		return fmt.Errorf("%s %s: %w (limit %d bytes)", cl.method, cl.path, ErrResponseTooLarge, maxResponseBytes)
	}

	if resp.StatusCode == http.StatusUnauthorized && !cl.public {
		if c.onUnauthorized != nil {
			c.onUnauthorized(ctx, sentToken)
		}
		return &APIError{Status: resp.StatusCode, Message: messageFrom(payload, "Authentication required"), Err: ErrUnauthorized}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: messageFrom(payload, FallbackMessage)}
		if resp.StatusCode == http.StatusUnauthorized {
			apiErr.Err = ErrUnauthorized
		}
		return apiErr
	}

	if cl.out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, cl.out); err != nil {
		return fmt.Errorf("decode %s %s: %w", cl.method, cl.path, err)
	}
	return nil
}

func messageFrom(payload []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Message == "" {
		return fallback
	}
	return body.Message
}
