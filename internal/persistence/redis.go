package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-session/internal/config"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// RedisBackend stores session entries under "emporia:session:<namespace>:".
// Multi-key writes run inside MULTI/EXEC.
type RedisBackend struct {
	redis     *Redis
	keyPrefix string
	ttl       time.Duration
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend builds a backend over an existing connection.
func NewRedisBackend(r *Redis, namespace string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{
		redis:     r,
		keyPrefix: "emporia:session:" + namespace + ":",
		ttl:       ttl,
	}
}

func (b *RedisBackend) key(k string) string {
	return b.keyPrefix + k
}

// Get reads one namespaced key.
func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.redis.Client.Get(ctx, b.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetMany writes all entries in a single MULTI/EXEC.
func (b *RedisBackend) SetMany(ctx context.Context, entries map[string]string) error {
	_, err := b.redis.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, b.key(k), v, b.ttl)
		}
		return nil
	})
	return err
}

// DeleteMany removes keys in a single MULTI/EXEC.
func (b *RedisBackend) DeleteMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = b.key(k)
	}
	return b.redis.Client.Del(ctx, full...).Err()
}

// Ping checks the redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.redis.Ping(ctx)
}

// Close closes the underlying client.
func (b *RedisBackend) Close() error {
	b.redis.Close()
	return nil
}
