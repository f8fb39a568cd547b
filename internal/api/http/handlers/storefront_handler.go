package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/storefront-session/internal/apiclient"
)

// StorefrontHandler forwards resource calls to the backend with the session's
// bearer token. Payloads pass through untouched.
type StorefrontHandler struct {
	api *apiclient.Client
}

// NewStorefrontHandler constructs handler.
func NewStorefrontHandler(api *apiclient.Client) *StorefrontHandler {
	return &StorefrontHandler{api: api}
}

func (h *StorefrontHandler) relay(c *fiber.Ctx, fetch func(context.Context) (json.RawMessage, error)) error {
	raw, err := fetch(c.UserContext())
	if err != nil {
		return mapResourceError(err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

func (h *StorefrontHandler) relayBody(c *fiber.Ctx, post func(context.Context, json.RawMessage) (json.RawMessage, error)) error {
	body := json.RawMessage(c.Body())
	if !json.Valid(body) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	return h.relay(c, func(ctx context.Context) (json.RawMessage, error) {
		return post(ctx, body)
	})
}

// Cart handles GET /api/cart.
func (h *StorefrontHandler) Cart(c *fiber.Ctx) error {
	return h.relay(c, h.api.Cart)
}

// AddToCart handles POST /api/cart/items.
func (h *StorefrontHandler) AddToCart(c *fiber.Ctx) error {
	return h.relayBody(c, h.api.AddToCart)
}

// Orders handles GET /api/orders.
func (h *StorefrontHandler) Orders(c *fiber.Ctx) error {
	return h.relay(c, h.api.Orders)
}

// PlaceOrder handles POST /api/orders.
func (h *StorefrontHandler) PlaceOrder(c *fiber.Ctx) error {
	return h.relayBody(c, h.api.PlaceOrder)
}

// Products handles GET /api/products.
func (h *StorefrontHandler) Products(c *fiber.Ctx) error {
	return h.relay(c, h.api.Products)
}

// Product handles GET /api/products/:id.
func (h *StorefrontHandler) Product(c *fiber.Ctx) error {
	id := c.Params("id")
	return h.relay(c, func(ctx context.Context) (json.RawMessage, error) {
		return h.api.Product(ctx, id)
	})
}

// Categories handles GET /api/categories.
func (h *StorefrontHandler) Categories(c *fiber.Ctx) error {
	return h.relay(c, h.api.Categories)
}
