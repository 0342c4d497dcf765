package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/example/discussion-platform/services/threads/internal/thread"
)

func setupRedisLock(t *testing.T, wait time.Duration) (*Redis, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, 10*time.Second, wait, nil), s
}

func TestRedis_LockAndRelease(t *testing.T) {
	l, s := setupRedisLock(t, 100*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, ThreadKey(7))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !s.Exists("threads:lock:thread:7") {
		t.Fatal("expected lock key to exist")
	}
	unlock()
	if s.Exists("threads:lock:thread:7") {
		t.Fatal("expected lock key to be removed on release")
	}
}

func TestRedis_HeldLockTimesOut(t *testing.T) {
	l, _ := setupRedisLock(t, 60*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "thread:1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	_, err = l.Lock(ctx, "thread:1")
	if !errors.Is(err, thread.ErrContention) {
		t.Fatalf("expected ErrContention, got %v", err)
	}
}

func TestRedis_ReleaseDoesNotStealForeignLock(t *testing.T) {
	l, s := setupRedisLock(t, 100*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "thread:1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// The lock expired and someone else took it over.
	s.FastForward(11 * time.Second)
	if err := s.Set("threads:lock:thread:1", "someone-else"); err != nil {
		t.Fatalf("set: %v", err)
	}

	unlock()
	got, err := s.Get("threads:lock:thread:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "someone-else" {
		t.Fatalf("expected foreign lock to survive, got %q", got)
	}
}

func TestRedis_ExpiredLockCanBeRetaken(t *testing.T) {
	l, s := setupRedisLock(t, 100*time.Millisecond)
	ctx := context.Background()

	if _, err := l.Lock(ctx, "thread:1"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	s.FastForward(11 * time.Second)

	unlock, err := l.Lock(ctx, "thread:1")
	if err != nil {
		t.Fatalf("expected expired lock to be retaken: %v", err)
	}
	unlock()
}
