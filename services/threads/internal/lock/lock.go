// Package lock serializes mutations of a single thread. Different keys never
// block each other.
package lock

import (
	"context"
	"fmt"

	"github.com/example/discussion-platform/services/threads/internal/thread"
)

// Locker acquires an exclusive lock on key. The returned func releases it and
// is safe to call more than once. A lock that cannot be acquired in time
// yields an error wrapping thread.ErrContention.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// NewThreadKey serializes the creation of thread roots, which have no root
// id to lock on yet.
const NewThreadKey = "thread:new"

// ThreadKey is the lock key for a thread root.
func ThreadKey(root thread.ID) string {
	return "thread:" + root.String()
}

func contention(key string, cause error) error {
	return fmt.Errorf("%w: %s: %v", thread.ErrContention, key, cause)
}
