package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/discussion-platform/services/threads/internal/idempotency"
	"github.com/example/discussion-platform/services/threads/internal/service"
	"github.com/example/discussion-platform/services/threads/internal/store"
	"github.com/example/discussion-platform/services/threads/internal/thread"
)

// contendedStore fails every mutation as if another writer held the thread.
type contendedStore struct {
	thread.Store
}

func (contendedStore) Mutate(context.Context, thread.ID, func(thread.Tx) error) error {
	return fmt.Errorf("%w: test", thread.ErrContention)
}

func newTestConsumer(t *testing.T, st thread.Store) *Consumer {
	t.Helper()
	dedup, err := idempotency.NewStore(nil, nil, time.Hour, false)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	return &Consumer{Log: zap.NewNop(), Service: service.New(st, nil, nil), Dedup: dedup}
}

func payload(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestHandle_CreateThenReplyThenDelete(t *testing.T) {
	st := store.NewInMemoryThreadStore(0)
	c := newTestConsumer(t, st)
	ctx := context.Background()

	out, err := c.handle(ctx, SubjectCreate, payload(t, CreateCommand{
		CommandID: "c1", UserID: "u1", CommentableType: "work", CommentableID: "w-1", Content: "root",
	}))
	if out != ack || err != nil {
		t.Fatalf("create root: %v %v", out, err)
	}
	roots, _ := st.Roots(ctx, thread.Commentable{Type: "work", ID: "w-1"})
	if len(roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(roots))
	}
	rootID := roots[0].ID.String()

	out, err = c.handle(ctx, SubjectCreate, payload(t, CreateCommand{
		CommandID: "c2", UserID: "u2", ParentID: rootID, Content: "reply",
	}))
	if out != ack || err != nil {
		t.Fatalf("create reply: %v %v", out, err)
	}
	nodes, _ := st.FetchThread(ctx, roots[0].ID)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}

	out, err = c.handle(ctx, SubjectDelete, payload(t, DeleteCommand{
		CommandID: "c3", UserID: "u2", CommentID: nodes[1].ID.String(),
	}))
	if out != ack || err != nil {
		t.Fatalf("delete: %v %v", out, err)
	}
	if nodes, _ := st.FetchThread(ctx, roots[0].ID); len(nodes) != 1 {
		t.Fatalf("expected reply removed, got %d nodes", len(nodes))
	}
}

func TestHandle_DuplicateCommandAppliedOnce(t *testing.T) {
	st := store.NewInMemoryThreadStore(0)
	c := newTestConsumer(t, st)
	ctx := context.Background()
	cmd := payload(t, CreateCommand{CommandID: "same", UserID: "u1", CommentableType: "work", CommentableID: "w-1", Content: "once"})

	for i := 0; i < 3; i++ {
		if out, err := c.handle(ctx, SubjectCreate, cmd); out != ack || err != nil {
			t.Fatalf("delivery %d: %v %v", i, out, err)
		}
	}
	roots, _ := st.Roots(ctx, thread.Commentable{Type: "work", ID: "w-1"})
	if len(roots) != 1 {
		t.Fatalf("expected exactly one root, got %d", len(roots))
	}
}

func TestHandle_ContentionRetriesAndForgets(t *testing.T) {
	inner := store.NewInMemoryThreadStore(0)
	ctx := context.Background()
	root, err := service.New(inner, nil, nil).Create(ctx, service.NewComment{
		Commentable: thread.Commentable{Type: "work", ID: "w-1"}, Author: thread.Author{ID: "u1"}, Content: "root",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	c := newTestConsumer(t, contendedStore{Store: inner})
	cmd := payload(t, CreateCommand{CommandID: "busy", UserID: "u2", ParentID: root.ID.String(), Content: "reply"})
	out, err := c.handle(ctx, SubjectCreate, cmd)
	if out != retry || !errors.Is(err, thread.ErrContention) {
		t.Fatalf("expected retry on contention, got %v %v", out, err)
	}
	if dup, _ := c.Dedup.Check(ctx, "busy"); dup {
		t.Fatal("a retried command must not be marked processed")
	}
}

func TestHandle_RejectionsAndBadPayloads(t *testing.T) {
	c := newTestConsumer(t, store.NewInMemoryThreadStore(0))
	ctx := context.Background()

	cases := []struct {
		name    string
		subject string
		data    []byte
		want    outcome
	}{
		{"not json", SubjectCreate, []byte("{"), drop},
		{"unknown subject", "threads.commands.edit", []byte("{}"), drop},
		{"missing command id", SubjectCreate, payload(t, CreateCommand{UserID: "u1", CommentableType: "w", CommentableID: "1", Content: "x"}), drop},
		{"bad parent id", SubjectCreate, payload(t, CreateCommand{CommandID: "p", UserID: "u1", ParentID: "abc", Content: "x"}), drop},
		{"bad comment id", SubjectDelete, payload(t, DeleteCommand{CommandID: "d", CommentID: "-1"}), drop},
		{"missing parent", SubjectCreate, payload(t, CreateCommand{CommandID: "m", UserID: "u1", ParentID: "99", Content: "x"}), ack},
		{"empty content", SubjectCreate, payload(t, CreateCommand{CommandID: "e", UserID: "u1", CommentableType: "w", CommentableID: "1"}), ack},
		{"delete missing", SubjectDelete, payload(t, DeleteCommand{CommandID: "g", UserID: "u1", CommentID: "42"}), ack},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if out, _ := c.handle(ctx, tc.subject, tc.data); out != tc.want {
				t.Fatalf("expected outcome %d, got %d", tc.want, out)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := map[uint64]time.Duration{
		0:  500 * time.Millisecond,
		1:  500 * time.Millisecond,
		2:  time.Second,
		4:  4 * time.Second,
		7:  30 * time.Second,
		50: 30 * time.Second,
	}
	for n, want := range cases {
		if got := backoffDelay(n); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", n, want, got)
		}
	}
}
