package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/storefront-session/internal/config"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("persistence: backend closed")

// Backend is the durable key-value storage behind the token store.
// SetMany and DeleteMany apply all keys or none; readers never observe a
// partially applied call.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, entries map[string]string) error
	DeleteMany(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the backend selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (Backend, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory session store; sessions will not survive restarts")
		return NewMemoryBackend(), nil
	case config.StoreDriverFile:
		return NewFileBackend(cfg.Store.FilePath, cfg.Store.FileKey, logger)
	case config.StoreDriverRedis:
		r := NewRedis(cfg.Redis, logger)
		return NewRedisBackend(r, cfg.Store.Namespace, cfg.Store.TTL()), nil
	case config.StoreDriverPostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if pg.PoolHandle() == nil {
			return nil, errors.New("postgres store requires POSTGRES_DSN")
		}
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return NewPostgresBackend(pg, cfg.Store.Namespace, cfg.Store.TTL()), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func expiryFor(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}
