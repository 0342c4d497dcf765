// Package thread holds the nested-set model for comment threads: interval
// assignment on insert, placeholder-aware removal, bulk loading and the
// visibility decoration used for display.
package thread

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ID identifies a comment. Ids grow monotonically, so ordering by id matches
// creation order.
type ID int64

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseID parses a decimal comment id.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, ErrInvalid
	}
	return ID(v), nil
}

// Commentable is the object a thread hangs off.
type Commentable struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Author struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Node is one comment together with its position in the thread.
type Node struct {
	ID           ID          `json:"id"`
	ParentID     *ID         `json:"parent_id,omitempty"`
	ThreadRootID ID          `json:"thread_root_id"`
	Left         int         `json:"left"`
	Right        int         `json:"right"`
	Deleted      bool        `json:"deleted"`
	Commentable  Commentable `json:"commentable"`
	Author       Author      `json:"author"`
	Content      string      `json:"content"`
	ContentHash  []byte      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (n Node) IsRoot() bool { return n.ParentID == nil }

// Contains reports whether o lies strictly inside n's interval.
func (n Node) Contains(o Node) bool {
	return n.ThreadRootID == o.ThreadRootID && n.Left < o.Left && o.Right < n.Right
}

var (
	ErrNotFound       = errors.New("comment not found")
	ErrAlreadyDeleted = fmt.Errorf("%w: already deleted", ErrNotFound)
	ErrIntegrity      = errors.New("thread integrity violation")
	ErrContention     = errors.New("thread is locked by another writer")
	ErrDuplicate      = errors.New("duplicate comment")
	ErrParentDeleted  = errors.New("cannot reply to a deleted comment")
	ErrInvalid        = errors.New("invalid comment")
)

// Tx is one atomic unit of work against a store. Implementations apply every
// call to a private view of the touched thread and publish it on commit.
type Tx interface {
	Node(ctx context.Context, id ID) (Node, error)
	HasChildren(ctx context.Context, id ID) (bool, error)
	// HasDuplicate reports whether a non-deleted comment with the same
	// commentable, parent, author and content hash exists.
	HasDuplicate(ctx context.Context, n Node) (bool, error)

	// CreateRoot stores n as a new thread root and assigns its id.
	CreateRoot(ctx context.Context, n Node) (Node, error)
	// CreateChild stores n at the interval already set on it.
	CreateChild(ctx context.Context, n Node) (Node, error)
	// OpenGap adds 2 to every Left >= at and every Right >= at in the thread.
	OpenGap(ctx context.Context, root ID, at int) error
	// CloseGap subtracts 2 from every Left > after and every Right > after.
	CloseGap(ctx context.Context, root ID, after int) error
	Delete(ctx context.Context, id ID) error
	MarkDeleted(ctx context.Context, id ID) error
}

// Reader is the read side of a store.
type Reader interface {
	Node(ctx context.Context, id ID) (Node, error)
	RootOf(ctx context.Context, id ID) (ID, error)
	// FetchThread returns every node whose ThreadRootID is root.
	FetchThread(ctx context.Context, root ID) ([]Node, error)
	// ResolveAuthors maps author ids to display names.
	ResolveAuthors(ctx context.Context, ids []string) (map[string]string, error)
	Roots(ctx context.Context, c Commentable) ([]Node, error)
}

// Store is a Reader that can also run mutations.
type Store interface {
	Reader
	// Mutate runs fn inside one atomic unit, serialized against other
	// mutations of the same thread. root is zero when fn creates a new thread.
	Mutate(ctx context.Context, root ID, fn func(Tx) error) error
}
