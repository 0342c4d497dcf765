// Package store provides thread.Store backends: an in-memory store for
// development, Postgres and SQLite for persistence, and a Redis read-through
// cache for bulk thread loads.
package store

import (
	"bytes"

	"github.com/example/discussion-platform/services/threads/internal/thread"
)

// Drivers accepted by the STORE_DRIVER setting.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func sameParent(a, b *thread.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func isDuplicate(existing, n thread.Node) bool {
	return !existing.Deleted &&
		existing.Commentable == n.Commentable &&
		sameParent(existing.ParentID, n.ParentID) &&
		existing.Author.ID == n.Author.ID &&
		bytes.Equal(existing.ContentHash, n.ContentHash)
}
