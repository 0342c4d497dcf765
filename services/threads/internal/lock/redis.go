package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another writer is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lock shared by every instance pointed at the same Redis.
type Redis struct {
	Client *redis.Client
	Prefix string
	// TTL bounds how long a crashed holder can keep the lock.
	TTL time.Duration
	// Wait bounds how long Lock retries before reporting contention.
	Wait  time.Duration
	Retry time.Duration
	Log   *zap.Logger
}

func NewRedis(client *redis.Client, ttl, wait time.Duration, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{
		Client: client,
		Prefix: "threads:lock:",
		TTL:    ttl,
		Wait:   wait,
		Retry:  25 * time.Millisecond,
		Log:    log,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	full := r.Prefix + key
	token := uuid.NewString()

	if r.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Wait)
		defer cancel()
	}

	retry := r.Retry
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, contention(key, ctx.Err())
		case <-timer.C:
		}

		ok, err := r.Client.SetNX(ctx, full, token, r.TTL).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, contention(key, err)
			}
			return nil, err
		}
		if ok {
			break
		}
		timer.Reset(retry)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done; release on a fresh one.
			c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(c, r.Client, []string{full}, token).Err(); err != nil {
				r.Log.Warn("lock release failed", zap.String("key", full), zap.Error(err))
			}
		})
	}, nil
}
