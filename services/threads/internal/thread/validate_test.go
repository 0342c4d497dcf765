package thread

import (
	"errors"
	"testing"
)

func sampleThread() []Node {
	return []Node{
		{ID: 1, ThreadRootID: 1, Left: 1, Right: 8},
		{ID: 2, ParentID: idp(1), ThreadRootID: 1, Left: 2, Right: 5},
		{ID: 3, ParentID: idp(2), ThreadRootID: 1, Left: 3, Right: 4},
		{ID: 4, ParentID: idp(1), ThreadRootID: 1, Left: 6, Right: 7},
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(sampleThread()); err != nil {
		t.Fatalf("valid thread rejected: %v", err)
	}

	cases := map[string]func([]Node){
		"inverted interval":     func(n []Node) { n[2].Left, n[2].Right = 4, 3 },
		"root not at one":       func(n []Node) { n[0].Left = 2 },
		"child outside parent":  func(n []Node) { n[2].Right = 6 },
		"siblings overlap":      func(n []Node) { n[3].Left = 4 },
		"missing parent":        func(n []Node) { n[3].ParentID = idp(9) },
		"childless placeholder": func(n []Node) { n[3].Deleted = true },
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			nodes := sampleThread()
			corrupt(nodes)
			if err := Validate(nodes); !errors.Is(err, ErrIntegrity) {
				t.Fatalf("expected ErrIntegrity, got %v", err)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID("42"); err != nil || id != 42 {
		t.Fatalf("expected 42, got %d, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-3", "abc"} {
		if _, err := ParseID(bad); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%q: expected ErrInvalid, got %v", bad, err)
		}
	}
}
