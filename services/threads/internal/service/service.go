// Package service runs thread operations against a store: each mutation is
// one atomic unit on its thread, and domain events go out after commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/discussion-platform/services/threads/internal/events"
	"github.com/example/discussion-platform/services/threads/internal/thread"
)

// ErrForbidden is returned when the actor may not remove a comment.
var ErrForbidden = errors.New("not the author of the comment")

// MaxContentBytes bounds a single comment body.
const MaxContentBytes = 10_000

type Service struct {
	Store  thread.Store
	Loader *thread.Loader
	Events *events.Publisher
	Log    *zap.Logger
	Order  thread.Order
}

func New(st thread.Store, ev *events.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Store: st, Loader: thread.NewLoader(st), Events: ev, Log: log}
}

// NewComment is the input for Create. A nil ParentID starts a new thread on
// Commentable; replies inherit the commentable of their parent.
type NewComment struct {
	ParentID    *thread.ID
	Commentable thread.Commentable
	Author      thread.Author
	Content     string
}

// Actor is whoever asks for a removal.
type Actor struct {
	UserID string
	Admin  bool
}

func (s *Service) Create(ctx context.Context, in NewComment) (thread.Node, error) {
	if strings.TrimSpace(in.Content) == "" {
		return thread.Node{}, fmt.Errorf("%w: content must not be empty", thread.ErrInvalid)
	}
	if len(in.Content) > MaxContentBytes {
		return thread.Node{}, fmt.Errorf("%w: content exceeds %d bytes", thread.ErrInvalid, MaxContentBytes)
	}

	var root thread.ID
	if in.ParentID != nil {
		r, err := s.Store.RootOf(ctx, *in.ParentID)
		if err != nil {
			return thread.Node{}, err
		}
		root = r
	}

	var created thread.Node
	err := s.Store.Mutate(ctx, root, func(tx thread.Tx) error {
		n, err := thread.Insert(ctx, tx, thread.Node{
			ParentID:    in.ParentID,
			Commentable: in.Commentable,
			Author:      in.Author,
			Content:     in.Content,
		})
		created = n
		return err
	})
	if err != nil {
		return thread.Node{}, err
	}
	created.Author = in.Author

	s.Log.Info("comment created",
		zap.Stringer("comment_id", created.ID),
		zap.Stringer("thread_root_id", created.ThreadRootID),
		zap.String("author_id", created.Author.ID))
	s.Events.CommentCreated(created)
	return created, nil
}

// Delete removes id on behalf of actor. Only the author or an admin may do so.
func (s *Service) Delete(ctx context.Context, id thread.ID, actor Actor) (thread.Removal, error) {
	root, err := s.Store.RootOf(ctx, id)
	if err != nil {
		return thread.Removal{}, err
	}

	var res thread.Removal
	err = s.Store.Mutate(ctx, root, func(tx thread.Tx) error {
		target, err := tx.Node(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Admin && target.Author.ID != actor.UserID {
			return ErrForbidden
		}
		res, err = thread.Remove(ctx, tx, id)
		return err
	})
	if err != nil {
		return thread.Removal{}, err
	}

	s.Log.Info("comment removed",
		zap.Stringer("comment_id", id),
		zap.Stringer("thread_root_id", res.ThreadRootID),
		zap.Int("physically_removed", len(res.Removed)),
		zap.Bool("soft", res.SoftDeleted != nil))
	s.Events.CommentRemoved(res, actor.UserID)
	return res, nil
}

// Get returns one comment with its author name.
func (s *Service) Get(ctx context.Context, id thread.ID) (thread.Node, error) {
	n, err := s.Store.Node(ctx, id)
	if err != nil {
		return thread.Node{}, err
	}
	names, err := s.Store.ResolveAuthors(ctx, []string{n.Author.ID})
	if err != nil {
		return thread.Node{}, fmt.Errorf("resolve author: %w", err)
	}
	n.Author.Name = names[n.Author.ID]
	return n, nil
}

// Decorate loads the thread containing id and decorates it with visible. The
// decoration's focus is id. alreadyAssociated skips author name resolution
// for callers that do not display names.
func (s *Service) Decorate(ctx context.Context, id thread.ID, alreadyAssociated bool, visible thread.Predicate) (*thread.Decoration, error) {
	nodes, err := s.Loader.Load(ctx, id, alreadyAssociated)
	if err != nil {
		return nil, err
	}
	d, err := thread.Decorate(nodes, id, visible, thread.WithOrder(s.Order))
	if errors.Is(err, thread.ErrIntegrity) {
		s.Log.Error("thread integrity violation", zap.Stringer("comment_id", id), zap.Error(err))
	}
	return d, err
}

// IntegrityReport is the outcome of Check. Problem is empty for a sound thread.
type IntegrityReport struct {
	ThreadRootID thread.ID
	Nodes        int
	Problem      string
}

// Check validates the stored intervals of the thread containing id.
func (s *Service) Check(ctx context.Context, id thread.ID) (IntegrityReport, error) {
	root, err := s.Store.RootOf(ctx, id)
	if err != nil {
		return IntegrityReport{}, err
	}
	rep := IntegrityReport{ThreadRootID: root}
	nodes, err := s.Loader.Load(ctx, root, true)
	if err == nil {
		rep.Nodes = len(nodes)
		err = thread.Validate(nodes)
	}
	switch {
	case err == nil:
		return rep, nil
	case errors.Is(err, thread.ErrIntegrity):
		rep.Problem = err.Error()
		s.Log.Warn("thread integrity check failed", zap.Stringer("thread_root_id", root), zap.Error(err))
		return rep, nil
	default:
		return IntegrityReport{}, err
	}
}

// Roots lists the threads started on c, oldest first.
func (s *Service) Roots(ctx context.Context, c thread.Commentable) ([]thread.Node, error) {
	roots, err := s.Store.Roots(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return roots, nil
	}
	ids := make([]string, 0, len(roots))
	for _, r := range roots {
		ids = append(ids, r.Author.ID)
	}
	names, err := s.Store.ResolveAuthors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve authors: %w", err)
	}
	for i := range roots {
		roots[i].Author.Name = names[roots[i].Author.ID]
	}
	return roots, nil
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
