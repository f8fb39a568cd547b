package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/storefront-session/internal/api/http/handlers"
	"github.com/spec-kit/storefront-session/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health     *handlers.HealthHandler
	Session    *handlers.SessionHandler
	Storefront *handlers.StorefrontHandler
	Guard      *auth.GuardMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	sessionGroup := app.Group("/session")
	sessionGroup.Get("", cfg.Session.State)
	sessionGroup.Get("/guard", cfg.Session.Guard)
	sessionGroup.Post("/login", cfg.Session.Login)
	sessionGroup.Post("/logout", cfg.Session.Logout)
	sessionGroup.Post("/register", cfg.Session.Register)

	api := app.Group("/api")
	api.Get("/products", cfg.Storefront.Products)
	api.Get("/products/:id", cfg.Storefront.Product)
	api.Get("/categories", cfg.Storefront.Categories)

	// Group-level handlers apply to the whole prefix, so guards are per route.
	customer := cfg.Guard.RequireCustomer()
	api.Get("/cart", customer, cfg.Storefront.Cart)
	api.Post("/cart/items", customer, cfg.Storefront.AddToCart)
	api.Get("/orders", customer, cfg.Storefront.Orders)
	api.Post("/orders", customer, cfg.Storefront.PlaceOrder)

	admin := app.Group("/admin", cfg.Guard.RequireAdmin())
	admin.Get("/metrics", cfg.Health.Metrics)
}
