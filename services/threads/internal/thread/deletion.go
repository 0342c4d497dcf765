package thread

import (
	"context"
	"fmt"
)

// Removal describes what Remove changed.
type Removal struct {
	ThreadRootID ID
	// Removed lists physically deleted nodes: the target first, then every
	// placeholder ancestor that lost its last child.
	Removed []ID
	// SoftDeleted is set when the target still had replies and was turned
	// into a placeholder instead.
	SoftDeleted *ID
}

// Remove deletes the comment id. A leaf is removed and the interval gap it
// leaves is closed. A comment with replies is only marked deleted. After a
// physical removal each placeholder ancestor that is left without children is
// removed too, walking up until an ancestor still has children, is not a
// placeholder, or the thread root has been handled.
//
// Remove must run inside Store.Mutate for the comment's thread.
func Remove(ctx context.Context, tx Tx, id ID) (Removal, error) {
	target, err := tx.Node(ctx, id)
	if err != nil {
		return Removal{}, err
	}
	res := Removal{ThreadRootID: target.ThreadRootID}

	hasChildren, err := tx.HasChildren(ctx, target.ID)
	if err != nil {
		return Removal{}, err
	}
	if hasChildren {
		if target.Deleted {
			return Removal{}, ErrAlreadyDeleted
		}
		if err := tx.MarkDeleted(ctx, target.ID); err != nil {
			return Removal{}, fmt.Errorf("mark %s deleted: %w", target.ID, err)
		}
		res.SoftDeleted = &target.ID
		return res, nil
	}

	for {
		if err := tx.Delete(ctx, target.ID); err != nil {
			return Removal{}, fmt.Errorf("delete %s: %w", target.ID, err)
		}
		if err := tx.CloseGap(ctx, target.ThreadRootID, target.Right); err != nil {
			return Removal{}, fmt.Errorf("close gap after %d: %w", target.Right, err)
		}
		res.Removed = append(res.Removed, target.ID)

		if target.ParentID == nil {
			return res, nil
		}
		parent, err := tx.Node(ctx, *target.ParentID)
		if err != nil {
			return Removal{}, fmt.Errorf("%w: parent %s of %s: %v", ErrIntegrity, *target.ParentID, target.ID, err)
		}
		if !parent.Deleted {
			return res, nil
		}
		hasChildren, err := tx.HasChildren(ctx, parent.ID)
		if err != nil {
			return Removal{}, err
		}
		if hasChildren {
			return res, nil
		}
		target = parent
	}
}
