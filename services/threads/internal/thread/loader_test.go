package thread

import (
	"context"
	"errors"
	"testing"
)

func loaderFixture() *fakeReader {
	nodes := sampleThread()
	// stored order is not display order
	nodes[0], nodes[3] = nodes[3], nodes[0]
	for i := range nodes {
		nodes[i].Author = Author{ID: "u" + nodes[i].ID.String()}
	}
	nodes[1].Author.ID = "u1"
	return &fakeReader{
		rootOf:  map[ID]ID{1: 1, 2: 1, 3: 1, 4: 1},
		nodes:   nodes,
		authors: map[string]string{"u1": "Ann", "u3": "Cid", "u4": "Dee"},
	}
}

func TestLoader_LoadsWholeThreadFromAnyNode(t *testing.T) {
	r := loaderFixture()
	nodes, err := NewLoader(r).Load(context.Background(), 3, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(nodes))
	}
	for i := 1; i < len(nodes); i++ {
		if nodes[i-1].Left >= nodes[i].Left {
			t.Fatalf("nodes not ordered by left: %+v", nodes)
		}
	}
	if r.authorCalls != 1 {
		t.Fatalf("expected one bulk author lookup, got %d", r.authorCalls)
	}
	if nodes[0].Author.Name != "Ann" || nodes[1].Author.Name != "Ann" {
		t.Fatalf("expected names resolved, got %+v", nodes[:2])
	}
}

func TestLoader_AlreadyAssociatedSkipsLookup(t *testing.T) {
	r := loaderFixture()
	if _, err := NewLoader(r).Load(context.Background(), 1, true); err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.authorCalls != 0 {
		t.Fatalf("expected no author lookup, got %d", r.authorCalls)
	}
}

func TestLoader_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewLoader(loaderFixture()).Load(ctx, 99, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	gone := loaderFixture()
	gone.rootOf[5] = 1
	if _, err := NewLoader(gone).Load(ctx, 5, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a node removed mid-load, got %v", err)
	}

	orphan := loaderFixture()
	for i := range orphan.nodes {
		if orphan.nodes[i].ID == 3 {
			orphan.nodes[i].ParentID = idp(12)
		}
	}
	if _, err := NewLoader(orphan).Load(ctx, 1, false); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for missing parent, got %v", err)
	}

	noRoot := loaderFixture()
	noRoot.rootOf[2] = 7
	if _, err := NewLoader(noRoot).Load(ctx, 2, false); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for missing root, got %v", err)
	}

	broken := loaderFixture()
	broken.fetchErr = errors.New("connection reset")
	if _, err := NewLoader(broken).Load(ctx, 1, false); err == nil {
		t.Fatal("expected fetch error to surface")
	}
}
