package thread

import (
	"context"
	"sort"
)

// memTx is a single-thread-map Tx used to exercise Insert and Remove.
type memTx struct {
	nodes  map[ID]Node
	nextID ID
	calls  []string
}

func newMemTx() *memTx { return &memTx{nodes: make(map[ID]Node)} }

func (m *memTx) Node(_ context.Context, id ID) (Node, error) {
	n, ok := m.nodes[id]
	if !ok {
		return Node{}, ErrNotFound
	}
	return n, nil
}

func (m *memTx) HasChildren(_ context.Context, id ID) (bool, error) {
	for _, n := range m.nodes {
		if n.ParentID != nil && *n.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memTx) HasDuplicate(_ context.Context, n Node) (bool, error) {
	for _, e := range m.nodes {
		if e.Deleted || e.Author.ID != n.Author.ID || string(e.ContentHash) != string(n.ContentHash) {
			continue
		}
		if (e.ParentID == nil) != (n.ParentID == nil) {
			continue
		}
		if e.ParentID != nil && *e.ParentID != *n.ParentID {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (m *memTx) CreateRoot(_ context.Context, n Node) (Node, error) {
	m.nextID++
	n.ID = m.nextID
	n.ThreadRootID = n.ID
	m.nodes[n.ID] = n
	m.calls = append(m.calls, "create-root")
	return n, nil
}

func (m *memTx) CreateChild(_ context.Context, n Node) (Node, error) {
	m.nextID++
	n.ID = m.nextID
	m.nodes[n.ID] = n
	m.calls = append(m.calls, "create-child")
	return n, nil
}

func (m *memTx) OpenGap(_ context.Context, root ID, at int) error {
	for id, n := range m.nodes {
		if n.ThreadRootID != root {
			continue
		}
		if n.Left >= at {
			n.Left += 2
		}
		if n.Right >= at {
			n.Right += 2
		}
		m.nodes[id] = n
	}
	m.calls = append(m.calls, "open-gap")
	return nil
}

func (m *memTx) CloseGap(_ context.Context, root ID, after int) error {
	for id, n := range m.nodes {
		if n.ThreadRootID != root {
			continue
		}
		if n.Left > after {
			n.Left -= 2
		}
		if n.Right > after {
			n.Right -= 2
		}
		m.nodes[id] = n
	}
	m.calls = append(m.calls, "close-gap")
	return nil
}

func (m *memTx) Delete(_ context.Context, id ID) error {
	if _, ok := m.nodes[id]; !ok {
		return ErrNotFound
	}
	delete(m.nodes, id)
	return nil
}

func (m *memTx) MarkDeleted(_ context.Context, id ID) error {
	n, ok := m.nodes[id]
	if !ok {
		return ErrNotFound
	}
	n.Deleted = true
	m.nodes[id] = n
	return nil
}

func (m *memTx) sorted() []Node {
	out := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Left < out[j].Left })
	return out
}

// fakeReader serves canned rows and counts author lookups.
type fakeReader struct {
	rootOf      map[ID]ID
	nodes       []Node
	authors     map[string]string
	authorCalls int
	fetchErr    error
}

func (f *fakeReader) Node(_ context.Context, id ID) (Node, error) {
	for _, n := range f.nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return Node{}, ErrNotFound
}

func (f *fakeReader) RootOf(_ context.Context, id ID) (ID, error) {
	root, ok := f.rootOf[id]
	if !ok {
		return 0, ErrNotFound
	}
	return root, nil
}

func (f *fakeReader) FetchThread(_ context.Context, root ID) ([]Node, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]Node, len(f.nodes))
	copy(out, f.nodes)
	return out, nil
}

func (f *fakeReader) ResolveAuthors(_ context.Context, ids []string) (map[string]string, error) {
	f.authorCalls++
	out := make(map[string]string)
	for _, id := range ids {
		if name, ok := f.authors[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (f *fakeReader) Roots(_ context.Context, c Commentable) ([]Node, error) {
	return nil, nil
}

func idp(id ID) *ID { return &id }
