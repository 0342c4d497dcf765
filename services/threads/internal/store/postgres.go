package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/discussion-platform/services/threads/internal/thread"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS comment_authors (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS thread_comments (
		id               BIGSERIAL PRIMARY KEY,
		commentable_type TEXT        NOT NULL,
		commentable_id   TEXT        NOT NULL,
		parent_id        BIGINT      REFERENCES thread_comments (id),
		thread_root_id   BIGINT      NOT NULL,
		lft              INTEGER     NOT NULL,
		rgt              INTEGER     NOT NULL,
		deleted          BOOLEAN     NOT NULL DEFAULT false,
		author_id        TEXT        NOT NULL,
		content          TEXT        NOT NULL,
		content_hash     BYTEA       NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (lft < rgt)
	)`,
	`CREATE INDEX IF NOT EXISTS thread_comments_thread ON thread_comments (thread_root_id, lft)`,
	`CREATE INDEX IF NOT EXISTS thread_comments_parent ON thread_comments (parent_id)`,
	`CREATE INDEX IF NOT EXISTS thread_comments_roots ON thread_comments (commentable_type, commentable_id) WHERE parent_id IS NULL`,
}

const postgresColumns = `id, commentable_type, commentable_id, parent_id, thread_root_id,
	lft, rgt, deleted, author_id, content, content_hash, created_at`

// PostgresThreadStore persists threads in Postgres. Mutations of one thread
// are serialized with a transaction-scoped advisory lock keyed by the root id.
type PostgresThreadStore struct {
	pool     *pgxpool.Pool
	lockWait time.Duration
}

func NewPostgresThreadStore(pool *pgxpool.Pool, lockWait time.Duration) *PostgresThreadStore {
	return &PostgresThreadStore{pool: pool, lockWait: lockWait}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresThreadStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresThreadStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanNode(row pgx.Row) (thread.Node, error) {
	var (
		n        thread.Node
		id, root int64
		parent   *int64
	)
	err := row.Scan(&id, &n.Commentable.Type, &n.Commentable.ID, &parent, &root,
		&n.Left, &n.Right, &n.Deleted, &n.Author.ID, &n.Content, &n.ContentHash, &n.CreatedAt)
	if err != nil {
		return thread.Node{}, err
	}
	n.ID, n.ThreadRootID = thread.ID(id), thread.ID(root)
	if parent != nil {
		pid := thread.ID(*parent)
		n.ParentID = &pid
	}
	return n, nil
}

func pgNode(ctx context.Context, q pgQueryer, id thread.ID) (thread.Node, error) {
	n, err := scanNode(q.QueryRow(ctx, `SELECT `+postgresColumns+` FROM thread_comments WHERE id = $1`, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return thread.Node{}, thread.ErrNotFound
	}
	return n, err
}

func pgNodes(ctx context.Context, q pgQueryer, sql string, args ...any) ([]thread.Node, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []thread.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresThreadStore) Node(ctx context.Context, id thread.ID) (thread.Node, error) {
	return pgNode(ctx, s.pool, id)
}

func (s *PostgresThreadStore) RootOf(ctx context.Context, id thread.ID) (thread.ID, error) {
	var root int64
	err := s.pool.QueryRow(ctx, `SELECT thread_root_id FROM thread_comments WHERE id = $1`, int64(id)).Scan(&root)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, thread.ErrNotFound
	}
	return thread.ID(root), err
}

func (s *PostgresThreadStore) FetchThread(ctx context.Context, root thread.ID) ([]thread.Node, error) {
	return pgNodes(ctx, s.pool,
		`SELECT `+postgresColumns+` FROM thread_comments WHERE thread_root_id = $1 ORDER BY lft`, int64(root))
}

func (s *PostgresThreadStore) ResolveAuthors(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, display_name FROM comment_authors WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (s *PostgresThreadStore) Roots(ctx context.Context, c thread.Commentable) ([]thread.Node, error) {
	return pgNodes(ctx, s.pool,
		`SELECT `+postgresColumns+` FROM thread_comments
		 WHERE commentable_type = $1 AND commentable_id = $2 AND parent_id IS NULL
		 ORDER BY id`, c.Type, c.ID)
}

func (s *PostgresThreadStore) Mutate(ctx context.Context, root thread.ID, fn func(thread.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.lockWait > 0 {
		// SET cannot take bind parameters; the value is an integer.
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockWait.Milliseconds())); err != nil {
			return err
		}
	}
	if root != 0 {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(root)); err != nil {
			return postgresErr(err)
		}
	}

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return postgresErr(err)
	}
	return postgresErr(tx.Commit(ctx))
}

// postgresErr reports lock waits that ran out and serialization failures as
// contention so callers can retry.
func postgresErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01":
			return fmt.Errorf("%w: %s", thread.ErrContention, pgErr.Message)
		}
	}
	return err
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Node(ctx context.Context, id thread.ID) (thread.Node, error) {
	return pgNode(ctx, t.tx, id)
}

func (t *postgresTx) HasChildren(ctx context.Context, id thread.ID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM thread_comments WHERE parent_id = $1)`, int64(id)).Scan(&exists)
	return exists, err
}

// rootLockClass keeps commentable locks apart from the bigint thread locks;
// the two-key advisory space never collides with the one-key space.
const rootLockClass = 1

func rootLockKey(c thread.Commentable) string {
	return c.Type + ":" + c.ID
}

// HasDuplicate for a new root first locks the commentable until commit, so
// two identical posts cannot both pass the check under READ COMMITTED.
func (t *postgresTx) HasDuplicate(ctx context.Context, n thread.Node) (bool, error) {
	if n.ParentID == nil {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int4, hashtext($2))`,
			rootLockClass, rootLockKey(n.Commentable)); err != nil {
			return false, postgresErr(err)
		}
	}
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(
		SELECT 1 FROM thread_comments
		WHERE commentable_type = $1 AND commentable_id = $2
		  AND parent_id IS NOT DISTINCT FROM $3
		  AND author_id = $4 AND content_hash = $5 AND NOT deleted)`,
		n.Commentable.Type, n.Commentable.ID, nullableID(n.ParentID), n.Author.ID, n.ContentHash).Scan(&exists)
	return exists, err
}

func (t *postgresTx) upsertAuthor(ctx context.Context, a thread.Author) error {
	if a.Name == "" {
		return nil
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO comment_authors (id, display_name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`, a.ID, a.Name)
	return err
}

func (t *postgresTx) insert(ctx context.Context, n thread.Node) (thread.Node, error) {
	if err := t.upsertAuthor(ctx, n.Author); err != nil {
		return thread.Node{}, fmt.Errorf("upsert author: %w", err)
	}
	n.Author.Name = ""
	const q = `INSERT INTO thread_comments (
			id, commentable_type, commentable_id, parent_id, thread_root_id,
			lft, rgt, author_id, content, content_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`
	err := t.tx.QueryRow(ctx, q, int64(n.ID), n.Commentable.Type, n.Commentable.ID, nullableID(n.ParentID),
		int64(n.ThreadRootID), n.Left, n.Right, n.Author.ID, n.Content, n.ContentHash).Scan(&n.CreatedAt)
	return n, err
}

func (t *postgresTx) nextID(ctx context.Context) (thread.ID, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT nextval(pg_get_serial_sequence('thread_comments', 'id'))`).Scan(&id)
	return thread.ID(id), err
}

func (t *postgresTx) CreateRoot(ctx context.Context, n thread.Node) (thread.Node, error) {
	id, err := t.nextID(ctx)
	if err != nil {
		return thread.Node{}, err
	}
	n.ID, n.ThreadRootID = id, id
	return t.insert(ctx, n)
}

func (t *postgresTx) CreateChild(ctx context.Context, n thread.Node) (thread.Node, error) {
	id, err := t.nextID(ctx)
	if err != nil {
		return thread.Node{}, err
	}
	n.ID = id
	return t.insert(ctx, n)
}

func (t *postgresTx) OpenGap(ctx context.Context, root thread.ID, at int) error {
	_, err := t.tx.Exec(ctx, `UPDATE thread_comments
		SET lft = CASE WHEN lft >= $2 THEN lft + 2 ELSE lft END,
		    rgt = rgt + 2
		WHERE thread_root_id = $1 AND rgt >= $2`, int64(root), at)
	return err
}

func (t *postgresTx) CloseGap(ctx context.Context, root thread.ID, after int) error {
	_, err := t.tx.Exec(ctx, `UPDATE thread_comments
		SET lft = CASE WHEN lft > $2 THEN lft - 2 ELSE lft END,
		    rgt = rgt - 2
		WHERE thread_root_id = $1 AND rgt > $2`, int64(root), after)
	return err
}

func (t *postgresTx) Delete(ctx context.Context, id thread.ID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM thread_comments WHERE id = $1`, int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return thread.ErrNotFound
	}
	return nil
}

func (t *postgresTx) MarkDeleted(ctx context.Context, id thread.ID) error {
	tag, err := t.tx.Exec(ctx, `UPDATE thread_comments SET deleted = true WHERE id = $1`, int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return thread.ErrNotFound
	}
	return nil
}
