package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/storefront-session/internal/api/http"
	"github.com/spec-kit/storefront-session/internal/api/http/handlers"
	"github.com/spec-kit/storefront-session/internal/apiclient"
	"github.com/spec-kit/storefront-session/internal/auth"
	"github.com/spec-kit/storefront-session/internal/config"
	"github.com/spec-kit/storefront-session/internal/events"
	"github.com/spec-kit/storefront-session/internal/observability"
	"github.com/spec-kit/storefront-session/internal/persistence"
	"github.com/spec-kit/storefront-session/internal/service"
	"github.com/spec-kit/storefront-session/internal/session"
	"github.com/spec-kit/storefront-session/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := persistence.Open(ctx, *cfg, logger)
	if err != nil {
		logger.Fatal("failed to open session store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer backend.Close()

	store := session.NewStore(backend, logger)
	evaluator := session.NewEvaluator(store, logger)
	metrics := observability.NewMetrics()

	client := apiclient.New(apiclient.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.RequestTimeout(),
	}, store, nil, logger)

	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.SubscribeAll(logEvent(logger))

	sessions := service.NewSessionService(cfg.API, service.SessionDependencies{
		Store:     store,
		Evaluator: evaluator,
		API:       client,
		Events:    dispatcher,
		Metrics:   metrics,
		Logger:    logger,
	})
	client.OnUnauthorized(sessions.HandleUnauthorized)
	guard := session.NewGuard(store, evaluator, sessions, logger)

	go func() {
		if err := sessions.Rehydrate(ctx); err != nil {
			logger.Warn("session rehydrate", zap.Error(err))
		}
	}()
	go worker.NewExpiryWatcher(sessions, cfg.Watcher.Interval(), logger).Run(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:     handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, sessions.Ready(), metrics),
		Session:    handlers.NewSessionHandler(sessions, guard),
		Storefront: handlers.NewStorefrontHandler(client),
		Guard:      auth.NewGuardMiddleware(guard, metrics, cfg.App.LoginPath),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func logEvent(logger *zap.Logger) events.EventHandler {
	return func(_ context.Context, e events.Event) error {
		fields := []zap.Field{zap.String("event", string(e.Type)), zap.String("event_id", e.ID)}
		if e.User != nil {
			fields = append(fields, zap.String("user", e.User.Username))
		}
		if e.Reason != "" {
			fields = append(fields, zap.String("reason", e.Reason))
		}
		logger.Info("session event", fields...)
		return nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
