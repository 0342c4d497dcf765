package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/discussion-platform/services/threads/internal/lock"
	"github.com/example/discussion-platform/services/threads/internal/thread"
)

// InMemoryThreadStore is a development-only store. A mutation works on a
// private copy of its thread and swaps it in on success, so readers see a
// thread either before or after a whole insert or removal.
type InMemoryThreadStore struct {
	mu      sync.RWMutex
	threads map[thread.ID]map[thread.ID]thread.Node // root -> id -> node
	rootOf  map[thread.ID]thread.ID
	authors map[string]string

	nextID atomic.Int64
	locks  *lock.Local
}

func NewInMemoryThreadStore(lockWait time.Duration) *InMemoryThreadStore {
	return &InMemoryThreadStore{
		threads: make(map[thread.ID]map[thread.ID]thread.Node),
		rootOf:  make(map[thread.ID]thread.ID),
		authors: make(map[string]string),
		locks:   lock.NewLocal(lockWait),
	}
}

func (s *InMemoryThreadStore) Node(_ context.Context, id thread.ID) (thread.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.rootOf[id]
	if !ok {
		return thread.Node{}, thread.ErrNotFound
	}
	n, ok := s.threads[root][id]
	if !ok {
		return thread.Node{}, thread.ErrNotFound
	}
	return n, nil
}

func (s *InMemoryThreadStore) RootOf(_ context.Context, id thread.ID) (thread.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.rootOf[id]
	if !ok {
		return 0, thread.ErrNotFound
	}
	return root, nil
}

func (s *InMemoryThreadStore) FetchThread(_ context.Context, root thread.ID) ([]thread.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.threads[root]
	out := make([]thread.Node, 0, len(t))
	for _, n := range t {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Left < out[j].Left })
	return out, nil
}

func (s *InMemoryThreadStore) ResolveAuthors(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := s.authors[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (s *InMemoryThreadStore) Roots(_ context.Context, c thread.Commentable) ([]thread.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []thread.Node
	for root, t := range s.threads {
		n := t[root]
		if n.Commentable == c {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryThreadStore) Mutate(ctx context.Context, root thread.ID, fn func(thread.Tx) error) error {
	key := lock.NewThreadKey
	if root != 0 {
		key = lock.ThreadKey(root)
	}
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	tx := &memoryTx{
		s:       s,
		work:    make(map[thread.ID]map[thread.ID]thread.Node),
		created: make(map[thread.ID]thread.ID),
		removed: make(map[thread.ID]struct{}),
		authors: make(map[string]string),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *InMemoryThreadStore) commit(tx *memoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for root, t := range tx.work {
		if len(t) == 0 {
			delete(s.threads, root)
			continue
		}
		s.threads[root] = t
	}
	for id, root := range tx.created {
		s.rootOf[id] = root
	}
	for id := range tx.removed {
		delete(s.rootOf, id)
	}
	for id, name := range tx.authors {
		s.authors[id] = name
	}
}

type memoryTx struct {
	s       *InMemoryThreadStore
	work    map[thread.ID]map[thread.ID]thread.Node
	created map[thread.ID]thread.ID
	removed map[thread.ID]struct{}
	authors map[string]string
}

// thread returns the private copy of root's thread, cloning it on first use.
func (tx *memoryTx) thread(root thread.ID) map[thread.ID]thread.Node {
	if t, ok := tx.work[root]; ok {
		return t
	}
	tx.s.mu.RLock()
	src := tx.s.threads[root]
	t := make(map[thread.ID]thread.Node, len(src)+1)
	for id, n := range src {
		t[id] = n
	}
	tx.s.mu.RUnlock()
	tx.work[root] = t
	return t
}

func (tx *memoryTx) rootOf(id thread.ID) (thread.ID, bool) {
	if _, gone := tx.removed[id]; gone {
		return 0, false
	}
	if root, ok := tx.created[id]; ok {
		return root, true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	root, ok := tx.s.rootOf[id]
	return root, ok
}

func (tx *memoryTx) Node(_ context.Context, id thread.ID) (thread.Node, error) {
	root, ok := tx.rootOf(id)
	if !ok {
		return thread.Node{}, thread.ErrNotFound
	}
	n, ok := tx.thread(root)[id]
	if !ok {
		return thread.Node{}, thread.ErrNotFound
	}
	return n, nil
}

func (tx *memoryTx) HasChildren(_ context.Context, id thread.ID) (bool, error) {
	root, ok := tx.rootOf(id)
	if !ok {
		return false, thread.ErrNotFound
	}
	for _, n := range tx.thread(root) {
		if n.ParentID != nil && *n.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) HasDuplicate(_ context.Context, n thread.Node) (bool, error) {
	if n.ParentID != nil {
		for _, existing := range tx.thread(n.ThreadRootID) {
			if isDuplicate(existing, n) {
				return true, nil
			}
		}
		return false, nil
	}

	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	for root, t := range tx.s.threads {
		if isDuplicate(t[root], n) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) stamp(n thread.Node) thread.Node {
	n.ID = thread.ID(tx.s.nextID.Add(1))
	n.CreatedAt = time.Now().UTC()
	if n.Author.Name != "" {
		tx.authors[n.Author.ID] = n.Author.Name
	}
	n.Author.Name = ""
	return n
}

func (tx *memoryTx) CreateRoot(_ context.Context, n thread.Node) (thread.Node, error) {
	n = tx.stamp(n)
	n.ThreadRootID = n.ID
	tx.work[n.ID] = map[thread.ID]thread.Node{n.ID: n}
	tx.created[n.ID] = n.ID
	return n, nil
}

func (tx *memoryTx) CreateChild(_ context.Context, n thread.Node) (thread.Node, error) {
	n = tx.stamp(n)
	tx.thread(n.ThreadRootID)[n.ID] = n
	tx.created[n.ID] = n.ThreadRootID
	return n, nil
}

func (tx *memoryTx) OpenGap(_ context.Context, root thread.ID, at int) error {
	t := tx.thread(root)
	for id, n := range t {
		if n.Left >= at {
			n.Left += 2
		}
		if n.Right >= at {
			n.Right += 2
		}
		t[id] = n
	}
	return nil
}

func (tx *memoryTx) CloseGap(_ context.Context, root thread.ID, after int) error {
	t := tx.thread(root)
	for id, n := range t {
		if n.Left > after {
			n.Left -= 2
		}
		if n.Right > after {
			n.Right -= 2
		}
		t[id] = n
	}
	return nil
}

func (tx *memoryTx) Delete(_ context.Context, id thread.ID) error {
	root, ok := tx.rootOf(id)
	if !ok {
		return thread.ErrNotFound
	}
	delete(tx.thread(root), id)
	delete(tx.created, id)
	tx.removed[id] = struct{}{}
	return nil
}

func (tx *memoryTx) MarkDeleted(_ context.Context, id thread.ID) error {
	root, ok := tx.rootOf(id)
	if !ok {
		return thread.ErrNotFound
	}
	t := tx.thread(root)
	n, ok := t[id]
	if !ok {
		return thread.ErrNotFound
	}
	n.Deleted = true
	t[id] = n
	return nil
}
