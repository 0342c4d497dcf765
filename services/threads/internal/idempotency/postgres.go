package idempotency

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const processedCommandsDDL = `CREATE TABLE IF NOT EXISTS processed_commands (
	command_id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type postgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func newPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *postgresStore {
	return &postgresStore{pool: pool, ttl: ttl}
}

// Migrate creates the processed_commands table.
func (s *postgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, processedCommandsDDL)
	return err
}

// Check inserts the id, or refreshes a row older than the TTL. Zero rows
// affected means a live mark already existed.
func (s *postgresStore) Check(ctx context.Context, commandID string) (bool, error) {
	const q = `INSERT INTO processed_commands (command_id, created_at)
	           VALUES ($1, now())
	           ON CONFLICT (command_id) DO UPDATE SET created_at = now()
	           WHERE processed_commands.created_at < now() - make_interval(secs => $2)`

	tag, err := s.pool.Exec(ctx, q, commandID, s.ttl.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

func (s *postgresStore) Forget(ctx context.Context, commandID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM processed_commands WHERE command_id = $1`, commandID)
	return err
}
