package thread

import (
	"errors"
	"testing"
)

// seven-node thread:
//
//	1 root
//	├── 2 child1
//	│   ├── 4 gc1a
//	│   └── 5 gc1b
//	└── 3 child2
//	    ├── 6 gc2a
//	    └── 7 gc2b
func sevenNodes() []Node {
	return []Node{
		{ID: 1, ThreadRootID: 1, Left: 1, Right: 14},
		{ID: 2, ParentID: idp(1), ThreadRootID: 1, Left: 2, Right: 7},
		{ID: 4, ParentID: idp(2), ThreadRootID: 1, Left: 3, Right: 4},
		{ID: 5, ParentID: idp(2), ThreadRootID: 1, Left: 5, Right: 6},
		{ID: 3, ParentID: idp(1), ThreadRootID: 1, Left: 8, Right: 13},
		{ID: 6, ParentID: idp(3), ThreadRootID: 1, Left: 9, Right: 10},
		{ID: 7, ParentID: idp(3), ThreadRootID: 1, Left: 11, Right: 12},
	}
}

func ids(ds []*Decorated) []ID {
	out := make([]ID, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestDecorate_TreeShape(t *testing.T) {
	d, err := Decorate(sevenNodes(), 6, nil)
	if err != nil {
		t.Fatalf("decorate: %v", err)
	}
	if d.Root().ID != 1 || d.Focus().ID != 6 || d.Len() != 7 {
		t.Fatalf("unexpected root/focus: %d %d %d", d.Root().ID, d.Focus().ID, d.Len())
	}
	if got := ids(d.Root().Replies()); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected root replies [2 3], got %v", got)
	}
	if got := d.Root().VisibleDescendantCount(); got != 6 {
		t.Fatalf("expected 6 visible descendants, got %d", got)
	}
}

func TestDecorate_SiblingOrder(t *testing.T) {
	nodes := []Node{
		{ID: 1, ThreadRootID: 1, Left: 1, Right: 6},
		// id order and interval order disagree
		{ID: 9, ParentID: idp(1), ThreadRootID: 1, Left: 2, Right: 3},
		{ID: 5, ParentID: idp(1), ThreadRootID: 1, Left: 4, Right: 5},
	}
	byInterval, err := Decorate(nodes, 1, nil)
	if err != nil {
		t.Fatalf("decorate: %v", err)
	}
	if got := ids(byInterval.Root().Replies()); got[0] != 9 {
		t.Fatalf("expected interval order [9 5], got %v", got)
	}
	byID, err := Decorate(nodes, 1, nil, WithOrder(OrderByID))
	if err != nil {
		t.Fatalf("decorate: %v", err)
	}
	if got := ids(byID.Root().Replies()); got[0] != 5 {
		t.Fatalf("expected id order [5 9], got %v", got)
	}
}

func TestDecorate_PlaceholderWithVisibleDescendant(t *testing.T) {
	nodes := sevenNodes()
	nodes[1].Deleted = true // child1 is a placeholder
	d, err := Decorate(nodes, 1, nil)
	if err != nil {
		t.Fatalf("decorate: %v", err)
	}
	child1, _ := d.Lookup(2)
	if child1.IsVisible() {
		t.Fatal("placeholder must not be visible")
	}
	if !child1.HasVisibleDescendant() {
		t.Fatal("placeholder with live replies has visible descendants")
	}
	if got := ids(d.Root().VisibleReplies()); len(got) != 2 {
		t.Fatalf("placeholder with live replies stays listed, got %v", got)
	}
	if got := d.Root().VisibleDescendantCount(); got != 5 {
		t.Fatalf("expected 5 visible descendants, got %d", got)
	}
}

func TestDecorate_HiddenSubtreeDropped(t *testing.T) {
	hidden := map[ID]bool{3: true, 6: true, 7: true}
	d, err := Decorate(sevenNodes(), 1, func(n Node) bool { return !hidden[n.ID] })
	if err != nil {
		t.Fatalf("decorate: %v", err)
	}
	if got := ids(d.Root().VisibleReplies()); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected only child1 listed, got %v", got)
	}
	child2, _ := d.Lookup(3)
	if child2.HasVisibleDescendant() {
		t.Fatal("fully hidden subtree has no visible descendants")
	}
}

func TestDecorate_PredicateMemoized(t *testing.T) {
	calls := make(map[ID]int)
	d, err := Decorate(sevenNodes(), 1, func(n Node) bool {
		calls[n.ID]++
		return n.ID%2 == 1
	})
	if err != nil {
		t.Fatalf("decorate: %v", err)
	}
	for i := 0; i < 3; i++ {
		d.Root().VisibleDescendantCount()
		d.Root().VisibleReplies()
		for _, r := range d.Root().Replies() {
			r.VisibleReplies()
			r.HasVisibleDescendant()
			r.IsVisible()
		}
	}
	for id, n := range calls {
		if n != 1 {
			t.Fatalf("predicate ran %d times for %s", n, id)
		}
	}
	if len(calls) != 6 {
		t.Fatalf("expected predicate evaluated for the 6 descendants, got %d", len(calls))
	}
}

func TestDecorate_Errors(t *testing.T) {
	if _, err := Decorate(sevenNodes(), 42, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing focus, got %v", err)
	}

	twoRoots := append(sevenNodes(), Node{ID: 8, ThreadRootID: 8, Left: 1, Right: 2})
	if _, err := Decorate(twoRoots, 1, nil); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for two roots, got %v", err)
	}

	if _, err := Decorate(sevenNodes()[1:], 2, nil); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity without root, got %v", err)
	}
}
