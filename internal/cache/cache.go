// Package cache provides the injected TTL cache used for verified auth
// tokens and update-status summaries. Implementations are explicit
// dependencies, never module-level singletons, so callers can swap the
// backend and tests can drive expiry through a fake clock.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-value cache with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}
