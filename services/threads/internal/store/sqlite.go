package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/example/discussion-platform/services/threads/internal/lock"
	"github.com/example/discussion-platform/services/threads/internal/thread"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS comment_authors (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS thread_comments (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		commentable_type TEXT    NOT NULL,
		commentable_id   TEXT    NOT NULL,
		parent_id        INTEGER REFERENCES thread_comments (id),
		thread_root_id   INTEGER NOT NULL,
		lft              INTEGER NOT NULL,
		rgt              INTEGER NOT NULL,
		deleted          INTEGER NOT NULL DEFAULT 0,
		author_id        TEXT    NOT NULL,
		content          TEXT    NOT NULL,
		content_hash     BLOB    NOT NULL,
		created_at       INTEGER NOT NULL,
		CHECK (lft < rgt)
	)`,
	`CREATE INDEX IF NOT EXISTS thread_comments_thread ON thread_comments (thread_root_id, lft)`,
	`CREATE INDEX IF NOT EXISTS thread_comments_parent ON thread_comments (parent_id)`,
	`CREATE INDEX IF NOT EXISTS thread_comments_roots ON thread_comments (commentable_type, commentable_id) WHERE parent_id IS NULL`,
}

const sqliteColumns = `id, commentable_type, commentable_id, parent_id, thread_root_id,
	lft, rgt, deleted, author_id, content, content_hash, created_at`

type sqliteRow struct {
	ID              int64         `db:"id"`
	CommentableType string        `db:"commentable_type"`
	CommentableID   string        `db:"commentable_id"`
	ParentID        sql.NullInt64 `db:"parent_id"`
	ThreadRootID    int64         `db:"thread_root_id"`
	Left            int           `db:"lft"`
	Right           int           `db:"rgt"`
	Deleted         bool          `db:"deleted"`
	AuthorID        string        `db:"author_id"`
	Content         string        `db:"content"`
	ContentHash     []byte        `db:"content_hash"`
	CreatedAt       int64         `db:"created_at"`
}

func (r sqliteRow) node() thread.Node {
	n := thread.Node{
		ID:           thread.ID(r.ID),
		ThreadRootID: thread.ID(r.ThreadRootID),
		Left:         r.Left,
		Right:        r.Right,
		Deleted:      r.Deleted,
		Commentable:  thread.Commentable{Type: r.CommentableType, ID: r.CommentableID},
		Author:       thread.Author{ID: r.AuthorID},
		Content:      r.Content,
		ContentHash:  r.ContentHash,
		CreatedAt:    time.Unix(0, r.CreatedAt).UTC(),
	}
	if r.ParentID.Valid {
		pid := thread.ID(r.ParentID.Int64)
		n.ParentID = &pid
	}
	return n
}

func nodesFromSQLite(rows []sqliteRow) []thread.Node {
	out := make([]thread.Node, len(rows))
	for i, r := range rows {
		out[i] = r.node()
	}
	return out
}

func nullableID(id *thread.ID) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}

// SQLiteThreadStore keeps threads in a single SQLite file. The DSN should ask
// for immediate transactions so writers queue on BEGIN instead of failing on
// lock upgrade.
type SQLiteThreadStore struct {
	db    *sqlx.DB
	locks lock.Locker
}

func NewSQLiteThreadStore(db *sqlx.DB, lockWait time.Duration) *SQLiteThreadStore {
	return &SQLiteThreadStore{db: db, locks: lock.NewLocal(lockWait)}
}

// WithLocker replaces the in-process thread lock, e.g. with lock.Redis when
// several processes open the same database file.
func (s *SQLiteThreadStore) WithLocker(l lock.Locker) *SQLiteThreadStore {
	s.locks = l
	return s
}

// Migrate creates the tables if they do not exist.
func (s *SQLiteThreadStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteThreadStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteThreadStore) Node(ctx context.Context, id thread.ID) (thread.Node, error) {
	return sqliteNode(ctx, s.db, id)
}

func (s *SQLiteThreadStore) RootOf(ctx context.Context, id thread.ID) (thread.ID, error) {
	var root int64
	err := s.db.GetContext(ctx, &root, `SELECT thread_root_id FROM thread_comments WHERE id = ?`, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, thread.ErrNotFound
	}
	return thread.ID(root), err
}

func (s *SQLiteThreadStore) FetchThread(ctx context.Context, root thread.ID) ([]thread.Node, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sqliteColumns+` FROM thread_comments WHERE thread_root_id = ? ORDER BY lft`, int64(root))
	if err != nil {
		return nil, err
	}
	return nodesFromSQLite(rows), nil
}

func (s *SQLiteThreadStore) ResolveAuthors(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT id, display_name FROM comment_authors WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID   string `db:"id"`
		Name string `db:"display_name"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r.Name
	}
	return out, nil
}

func (s *SQLiteThreadStore) Roots(ctx context.Context, c thread.Commentable) ([]thread.Node, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sqliteColumns+` FROM thread_comments
		 WHERE commentable_type = ? AND commentable_id = ? AND parent_id IS NULL
		 ORDER BY id`, c.Type, c.ID)
	if err != nil {
		return nil, err
	}
	return nodesFromSQLite(rows), nil
}

func (s *SQLiteThreadStore) Mutate(ctx context.Context, root thread.ID, fn func(thread.Tx) error) error {
	if root != 0 {
		unlock, err := s.locks.Lock(ctx, lock.ThreadKey(root))
		if err != nil {
			return err
		}
		defer unlock()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return sqliteErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return sqliteErr(err)
	}
	return sqliteErr(tx.Commit())
}

// sqliteErr reports a busy database as contention.
func sqliteErr(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_BUSY {
		return fmt.Errorf("%w: %v", thread.ErrContention, err)
	}
	return err
}

type sqliteQueryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

func sqliteNode(ctx context.Context, q sqliteQueryer, id thread.ID) (thread.Node, error) {
	var r sqliteRow
	err := q.GetContext(ctx, &r, `SELECT `+sqliteColumns+` FROM thread_comments WHERE id = ?`, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return thread.Node{}, thread.ErrNotFound
	}
	if err != nil {
		return thread.Node{}, err
	}
	return r.node(), nil
}

type sqliteTx struct {
	tx *sqlx.Tx
}

func (t *sqliteTx) Node(ctx context.Context, id thread.ID) (thread.Node, error) {
	return sqliteNode(ctx, t.tx, id)
}

func (t *sqliteTx) HasChildren(ctx context.Context, id thread.ID) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM thread_comments WHERE parent_id = ?)`, int64(id))
	return exists, err
}

func (t *sqliteTx) HasDuplicate(ctx context.Context, n thread.Node) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists, `SELECT EXISTS(
		SELECT 1 FROM thread_comments
		WHERE commentable_type = ? AND commentable_id = ? AND parent_id IS ?
		  AND author_id = ? AND content_hash = ? AND deleted = 0)`,
		n.Commentable.Type, n.Commentable.ID, nullableID(n.ParentID), n.Author.ID, n.ContentHash)
	return exists, err
}

func (t *sqliteTx) upsertAuthor(ctx context.Context, a thread.Author) error {
	if a.Name == "" {
		return nil
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO comment_authors (id, display_name) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name`, a.ID, a.Name)
	return err
}

func (t *sqliteTx) insert(ctx context.Context, n thread.Node) (thread.Node, error) {
	if err := t.upsertAuthor(ctx, n.Author); err != nil {
		return thread.Node{}, fmt.Errorf("upsert author: %w", err)
	}
	n.Author.Name = ""
	n.CreatedAt = time.Now().UTC()
	res, err := t.tx.ExecContext(ctx, `INSERT INTO thread_comments (
			commentable_type, commentable_id, parent_id, thread_root_id,
			lft, rgt, deleted, author_id, content, content_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		n.Commentable.Type, n.Commentable.ID, nullableID(n.ParentID), int64(n.ThreadRootID),
		n.Left, n.Right, n.Author.ID, n.Content, n.ContentHash, n.CreatedAt.UnixNano())
	if err != nil {
		return thread.Node{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return thread.Node{}, err
	}
	n.ID = thread.ID(id)
	return n, nil
}

func (t *sqliteTx) CreateRoot(ctx context.Context, n thread.Node) (thread.Node, error) {
	n.ThreadRootID = 0
	n, err := t.insert(ctx, n)
	if err != nil {
		return thread.Node{}, err
	}
	n.ThreadRootID = n.ID
	_, err = t.tx.ExecContext(ctx, `UPDATE thread_comments SET thread_root_id = id WHERE id = ?`, int64(n.ID))
	return n, err
}

func (t *sqliteTx) CreateChild(ctx context.Context, n thread.Node) (thread.Node, error) {
	return t.insert(ctx, n)
}

func (t *sqliteTx) OpenGap(ctx context.Context, root thread.ID, at int) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE thread_comments
		SET lft = CASE WHEN lft >= ? THEN lft + 2 ELSE lft END,
		    rgt = CASE WHEN rgt >= ? THEN rgt + 2 ELSE rgt END
		WHERE thread_root_id = ? AND rgt >= ?`, at, at, int64(root), at)
	return err
}

func (t *sqliteTx) CloseGap(ctx context.Context, root thread.ID, after int) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE thread_comments
		SET lft = CASE WHEN lft > ? THEN lft - 2 ELSE lft END,
		    rgt = CASE WHEN rgt > ? THEN rgt - 2 ELSE rgt END
		WHERE thread_root_id = ? AND rgt > ?`, after, after, int64(root), after)
	return err
}

func (t *sqliteTx) Delete(ctx context.Context, id thread.ID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM thread_comments WHERE id = ?`, int64(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return thread.ErrNotFound
	}
	return nil
}

func (t *sqliteTx) MarkDeleted(ctx context.Context, id thread.ID) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE thread_comments SET deleted = 1 WHERE id = ?`, int64(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return thread.ErrNotFound
	}
	return nil
}
