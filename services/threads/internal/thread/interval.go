package thread

import (
	"context"
	"fmt"
	"strings"
)

// Insert places n in its thread. A node without a parent starts a new thread
// at (1, 2). A reply becomes the rightmost child of its parent: every bound at
// or beyond the parent's right edge moves two places to the right and the new
// node takes the freed pair.
//
// Insert must run inside Store.Mutate for the parent's thread.
func Insert(ctx context.Context, tx Tx, n Node) (Node, error) {
	if strings.TrimSpace(n.Author.ID) == "" {
		return Node{}, fmt.Errorf("%w: author is required", ErrInvalid)
	}
	n.Deleted = false
	n.ContentHash = Fingerprint(n.Content)

	if n.ParentID == nil {
		if n.Commentable.Type == "" || n.Commentable.ID == "" {
			return Node{}, fmt.Errorf("%w: commentable is required", ErrInvalid)
		}
		if err := rejectDuplicate(ctx, tx, n); err != nil {
			return Node{}, err
		}
		n.Left, n.Right = 1, 2
		return tx.CreateRoot(ctx, n)
	}

	parent, err := tx.Node(ctx, *n.ParentID)
	if err != nil {
		return Node{}, fmt.Errorf("load parent %s: %w", *n.ParentID, err)
	}
	if parent.Deleted {
		return Node{}, ErrParentDeleted
	}
	n.ThreadRootID = parent.ThreadRootID
	n.Commentable = parent.Commentable
	if err := rejectDuplicate(ctx, tx, n); err != nil {
		return Node{}, err
	}

	at := parent.Right
	if err := tx.OpenGap(ctx, parent.ThreadRootID, at); err != nil {
		return Node{}, fmt.Errorf("open gap at %d: %w", at, err)
	}
	n.Left, n.Right = at, at+1
	return tx.CreateChild(ctx, n)
}

func rejectDuplicate(ctx context.Context, tx Tx, n Node) error {
	dup, err := tx.HasDuplicate(ctx, n)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if dup {
		return ErrDuplicate
	}
	return nil
}
