package thread

import (
	"fmt"
	"sort"
)

// Predicate decides whether a comment's content may be shown to the current
// viewer. It is owned by the moderation layer.
type Predicate func(Node) bool

// NotDeleted shows every comment that has not been turned into a placeholder.
func NotDeleted(n Node) bool { return !n.Deleted }

// Order selects how sibling replies are arranged.
type Order int

const (
	// OrderByInterval sorts siblings by Left, which is the stored tree order.
	OrderByInterval Order = iota
	// OrderByID sorts siblings by id, the creation-order surrogate.
	OrderByID
)

type Option func(*Decoration)

func WithOrder(o Order) Option {
	return func(d *Decoration) { d.order = o }
}

// Decorated wraps a node with its replies and memoized visibility answers.
// Values are computed on first use and kept for the lifetime of the
// Decoration, which must not be shared between goroutines.
type Decorated struct {
	Node
	replies []*Decorated

	visible    func(Node) bool
	visibleSet bool
	visibleVal bool
	repliesSet bool
	repliesVal []*Decorated
	countSet   bool
	countVal   int
}

// Replies returns every direct reply in display order.
func (d *Decorated) Replies() []*Decorated { return d.replies }

// IsVisible evaluates the predicate once per node.
func (d *Decorated) IsVisible() bool {
	if !d.visibleSet {
		d.visibleVal = d.visible(d.Node)
		d.visibleSet = true
	}
	return d.visibleVal
}

// VisibleReplies returns the replies that are visible themselves or have
// something visible beneath them; the latter are shown as placeholders.
func (d *Decorated) VisibleReplies() []*Decorated {
	if !d.repliesSet {
		out := make([]*Decorated, 0, len(d.replies))
		for _, r := range d.replies {
			if r.IsVisible() || r.HasVisibleDescendant() {
				out = append(out, r)
			}
		}
		d.repliesVal = out
		d.repliesSet = true
	}
	return d.repliesVal
}

// VisibleDescendantCount counts visible nodes in the whole subtree below d.
func (d *Decorated) VisibleDescendantCount() int {
	if !d.countSet {
		total := 0
		for _, r := range d.replies {
			if r.IsVisible() {
				total++
			}
			total += r.VisibleDescendantCount()
		}
		d.countVal = total
		d.countSet = true
	}
	return d.countVal
}

func (d *Decorated) HasVisibleDescendant() bool {
	return d.VisibleDescendantCount() > 0
}

// Decoration is one pass over a loaded thread.
type Decoration struct {
	order Order
	root  *Decorated
	focus *Decorated
	byID  map[ID]*Decorated
}

// Decorate wraps a loaded thread. focus is the node the caller asked for and
// may be any node of the thread.
func Decorate(nodes []Node, focus ID, visible Predicate, opts ...Option) (*Decoration, error) {
	if visible == nil {
		visible = NotDeleted
	}
	d := &Decoration{byID: make(map[ID]*Decorated, len(nodes))}
	for _, opt := range opts {
		opt(d)
	}

	all := make([]*Decorated, 0, len(nodes))
	for _, n := range nodes {
		dn := &Decorated{Node: n, visible: visible}
		d.byID[n.ID] = dn
		all = append(all, dn)
	}

	grouped := make(map[ID][]*Decorated)
	for _, dn := range all {
		if dn.IsRoot() {
			if d.root != nil {
				return nil, fmt.Errorf("%w: thread has roots %s and %s", ErrIntegrity, d.root.ID, dn.ID)
			}
			d.root = dn
			continue
		}
		grouped[*dn.ParentID] = append(grouped[*dn.ParentID], dn)
	}
	if d.root == nil {
		return nil, fmt.Errorf("%w: thread has no root", ErrIntegrity)
	}

	for parentID, replies := range grouped {
		parent, ok := d.byID[parentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s missing", ErrIntegrity, parentID)
		}
		d.sortReplies(replies)
		parent.replies = replies
	}

	d.focus = d.byID[focus]
	if d.focus == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

func (d *Decoration) sortReplies(r []*Decorated) {
	switch d.order {
	case OrderByID:
		sort.Slice(r, func(i, j int) bool { return r[i].ID < r[j].ID })
	default:
		sort.Slice(r, func(i, j int) bool { return r[i].Left < r[j].Left })
	}
}

func (d *Decoration) Root() *Decorated  { return d.root }
func (d *Decoration) Focus() *Decorated { return d.focus }

func (d *Decoration) Lookup(id ID) (*Decorated, bool) {
	dn, ok := d.byID[id]
	return dn, ok
}

func (d *Decoration) Len() int { return len(d.byID) }
