// Package idempotency deduplicates asynchronous thread commands by id.
//
// Primary backend: Redis SETNX with TTL. Fallback: Postgres
// INSERT ... ON CONFLICT. Without either an in-memory store is used
// (development only).
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Store checks whether a command has already been processed and marks it.
type Store interface {
	// Check returns true if commandID was already processed.
	// If not seen, it atomically marks it as processed.
	Check(ctx context.Context, commandID string) (duplicate bool, err error)
	// Forget clears the mark so a redelivered command runs again. Used when
	// processing failed in a way that should be retried.
	Forget(ctx context.Context, commandID string) error
}

// NewStore picks the best available store: Redis > Postgres > in-memory.
// When isProd is true the in-memory fallback is refused.
func NewStore(rdb *redis.Client, pool *pgxpool.Pool, ttl time.Duration, isProd bool) (Store, error) {
	if rdb != nil {
		return newRedisStore(rdb, ttl), nil
	}
	if pool != nil {
		return newPostgresStore(pool, ttl), nil
	}
	if isProd {
		return nil, errors.New("production requires REDIS_URL or DATABASE_URL for command idempotency; in-memory store is not allowed")
	}
	return newMemoryStore(ttl), nil
}

// Migrate prepares backing tables for stores that need them.
func Migrate(ctx context.Context, s Store) error {
	if m, ok := s.(interface{ Migrate(context.Context) error }); ok {
		return m.Migrate(ctx)
	}
	return nil
}
