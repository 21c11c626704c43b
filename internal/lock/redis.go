package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "fabprogress:lock:"
	retryBackoff = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a lock shared by every instance talking to the same Redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *slog.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, log: log}
}

func lockKey(key string) string {
	return keyPrefix + key
}

// Lock polls SET NX until the key is taken or ctx is done. The lock expires
// after the configured TTL even if the holder never releases it.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	const op = "lock.Redis.Lock"

	token := uuid.NewString()
	k := lockKey(key)

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %s: %w", op, key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %s: %w", op, key, errors.Join(ErrNotAcquired, ctx.Err()))
		case <-time.After(retryBackoff):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be cancelled
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, r.client, []string{k}, token).Err(); err != nil {
				r.log.Warn("release lock", slog.String("key", key), slog.String("error", err.Error()))
			}
		})
	}, nil
}
