package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis backs the Cache with a Redis instance so cached entries survive
// process restarts and are shared between API replicas.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedis connects and pings the given address.
func NewRedis(ctx context.Context, addr string, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client, logger: logger}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }

var _ Cache = (*Redis)(nil)
