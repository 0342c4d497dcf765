package thread

import (
	"context"
	"fmt"
	"sort"
)

// Loader reads whole threads in one bulk fetch.
type Loader struct {
	Reader Reader
}

func NewLoader(r Reader) *Loader {
	return &Loader{Reader: r}
}

// Load returns every node of the thread containing id, ordered by Left.
//
// When alreadyAssociated is true the caller asserts that author names are
// already present on the stored records and no further lookup is made.
// Otherwise author names are resolved with a single bulk call.
func (l *Loader) Load(ctx context.Context, id ID, alreadyAssociated bool) ([]Node, error) {
	root, err := l.Reader.RootOf(ctx, id)
	if err != nil {
		return nil, err
	}
	nodes, err := l.Reader.FetchThread(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", root, err)
	}
	if err := checkLoaded(nodes, root, id); err != nil {
		return nil, err
	}

	if !alreadyAssociated {
		if err := l.associate(ctx, nodes); err != nil {
			return nil, err
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Left < nodes[j].Left })
	return nodes, nil
}

func (l *Loader) associate(ctx context.Context, nodes []Node) error {
	seen := make(map[string]struct{}, len(nodes))
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := seen[n.Author.ID]; ok {
			continue
		}
		seen[n.Author.ID] = struct{}{}
		ids = append(ids, n.Author.ID)
	}
	names, err := l.Reader.ResolveAuthors(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve authors: %w", err)
	}
	for i := range nodes {
		if name, ok := names[nodes[i].Author.ID]; ok {
			nodes[i].Author.Name = name
		}
	}
	return nil
}

// checkLoaded separates a concurrent removal (not found) from a corrupt
// store (integrity).
func checkLoaded(nodes []Node, root, id ID) error {
	present := make(map[ID]struct{}, len(nodes))
	for _, n := range nodes {
		present[n.ID] = struct{}{}
	}
	if _, ok := present[id]; !ok {
		return ErrNotFound
	}
	if _, ok := present[root]; !ok {
		return fmt.Errorf("%w: root %s missing from its own thread", ErrIntegrity, root)
	}
	for _, n := range nodes {
		if n.ThreadRootID != root {
			return fmt.Errorf("%w: node %s belongs to thread %s, fetched for %s", ErrIntegrity, n.ID, n.ThreadRootID, root)
		}
		if n.ParentID == nil {
			if n.ID != root {
				return fmt.Errorf("%w: second root %s in thread %s", ErrIntegrity, n.ID, root)
			}
			continue
		}
		if _, ok := present[*n.ParentID]; !ok {
			return fmt.Errorf("%w: parent %s of %s missing", ErrIntegrity, *n.ParentID, n.ID)
		}
	}
	return nil
}
