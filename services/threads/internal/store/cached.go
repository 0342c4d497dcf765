package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/discussion-platform/services/threads/internal/thread"
)

// CachedThreadStore keeps bulk thread loads in Redis. Entries are keyed by
// the thread's generation, which every committed mutation bumps. A reader
// that fetched before a mutation writes its copy under the old generation,
// where no later reader looks.
type CachedThreadStore struct {
	thread.Store
	Client    *redis.Client
	TTL       time.Duration
	Prefix    string
	GenPrefix string
	Log       *zap.Logger
}

func NewCachedThreadStore(inner thread.Store, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedThreadStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedThreadStore{
		Store:     inner,
		Client:    client,
		TTL:       ttl,
		Prefix:    "threads:thread:",
		GenPrefix: "threads:gen:",
		Log:       log,
	}
}

func (c *CachedThreadStore) genKey(root thread.ID) string {
	return c.GenPrefix + root.String()
}

func (c *CachedThreadStore) key(root thread.ID, gen int64) string {
	return c.Prefix + root.String() + ":" + strconv.FormatInt(gen, 10)
}

// generation returns the current generation of root; a missing counter is 0.
func (c *CachedThreadStore) generation(ctx context.Context, root thread.ID) (int64, error) {
	gen, err := c.Client.Get(ctx, c.genKey(root)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// cachedNode carries the content hash, which thread.Node hides from JSON.
type cachedNode struct {
	thread.Node
	Hash []byte `json:"hash"`
}

func (c *CachedThreadStore) FetchThread(ctx context.Context, root thread.ID) ([]thread.Node, error) {
	gen, err := c.generation(ctx, root)
	if err != nil {
		c.Log.Warn("thread cache: generation lookup failed", zap.Stringer("thread_root_id", root), zap.Error(err))
		return c.Store.FetchThread(ctx, root)
	}

	key := c.key(root, gen)
	val, err := c.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []cachedNode
		if err := json.Unmarshal(val, &cached); err == nil {
			out := make([]thread.Node, len(cached))
			for i, cn := range cached {
				out[i] = cn.Node
				out[i].ContentHash = cn.Hash
			}
			return out, nil
		}
		c.Log.Warn("thread cache: corrupt entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.Log.Warn("thread cache: get failed", zap.String("key", key), zap.Error(err))
	}

	nodes, err := c.Store.FetchThread(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(nodes) > 0 {
		cached := make([]cachedNode, len(nodes))
		for i, n := range nodes {
			cached[i] = cachedNode{Node: n, Hash: n.ContentHash}
		}
		if b, err := json.Marshal(cached); err == nil {
			if err := c.Client.Set(ctx, key, b, c.TTL).Err(); err != nil {
				c.Log.Warn("thread cache: set failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return nodes, nil
}

func (c *CachedThreadStore) Mutate(ctx context.Context, root thread.ID, fn func(thread.Tx) error) error {
	if err := c.Store.Mutate(ctx, root, fn); err != nil {
		return err
	}
	if root != 0 {
		c.Invalidate(ctx, root)
	}
	return nil
}

// Invalidate moves the thread to a new generation. The counter outlives every
// entry written under it, so it cannot fall back to a generation whose entry
// is still cached.
func (c *CachedThreadStore) Invalidate(ctx context.Context, root thread.ID) {
	gk := c.genKey(root)
	_, err := c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, gk)
		if c.TTL > 0 {
			p.Expire(ctx, gk, 2*c.TTL)
		}
		return nil
	})
	if err != nil {
		c.Log.Warn("thread cache: invalidate failed", zap.Stringer("thread_root_id", root), zap.Error(err))
	}
}

// Ping checks Redis and, when it can, the wrapped store.
func (c *CachedThreadStore) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return err
	}
	if p, ok := c.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
