package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-session/internal/config"
)

// Postgres wraps access to a pgx connection pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool when DSN is provided.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		logger.Warn("POSTGRES_DSN not provided; skipping database connection")
		return &Postgres{Pool: nil}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres")
	return &Postgres{Pool: pool}, nil
}

// Close releases pool resources.
func (p *Postgres) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// PoolHandle returns the underlying pgx pool.
func (p *Postgres) PoolHandle() *pgxpool.Pool {
	if p == nil {
		return nil
	}
	return p.Pool
}

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return errors.New("postgres pool not configured")
	}
	return p.Pool.Ping(ctx)
}

// PostgresBackend stores entries in the session_entries table, one row per
// (namespace, key).
type PostgresBackend struct {
	pg        *Postgres
	namespace string
	ttl       time.Duration
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend builds a backend over an open pool.
func NewPostgresBackend(pg *Postgres, namespace string, ttl time.Duration) *PostgresBackend {
	return &PostgresBackend{pg: pg, namespace: namespace, ttl: ttl}
}

const (
	selectEntrySQL = `SELECT value FROM session_entries
WHERE namespace = $1 AND key = $2 AND (expires_at IS NULL OR expires_at > now())`
	upsertEntrySQL = `INSERT INTO session_entries (namespace, key, value, expires_at, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (namespace, key) DO UPDATE
SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`
	deleteEntriesSQL = `DELETE FROM session_entries WHERE namespace = $1 AND key = ANY($2)`
)

// Get reads one entry of the namespace, ignoring expired rows.
func (b *PostgresBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := b.pg.Pool.QueryRow(ctx, selectEntrySQL, b.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetMany upserts all entries in one transaction.
func (b *PostgresBackend) SetMany(ctx context.Context, entries map[string]string) error {
	expiresAt := expiryFor(b.ttl)
	return pgx.BeginFunc(ctx, b.pg.Pool, func(tx pgx.Tx) error {
		for k, v := range entries {
			if _, err := tx.Exec(ctx, upsertEntrySQL, b.namespace, k, v, expiresAt); err != nil {
				return fmt.Errorf("upsert %s: %w", k, err)
			}
		}
		return nil
	})
}

// DeleteMany removes entries in one statement.
func (b *PostgresBackend) DeleteMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := b.pg.Pool.Exec(ctx, deleteEntriesSQL, b.namespace, keys)
	return err
}

// Ping checks the pool.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pg.Ping(ctx)
}

// Close closes the pool.
func (b *PostgresBackend) Close() error {
	b.pg.Close()
	return nil
}
