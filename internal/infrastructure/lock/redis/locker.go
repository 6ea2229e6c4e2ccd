package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix          = "knowledge-search:lock:doc:"
	defaultTTL          = 2 * time.Minute
	defaultPollInterval = 50 * time.Millisecond
)

// Locker serialises document writes across processes with SETNX + TTL.
// Each acquisition carries its own token so only the holder can release it.
type Locker struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Locker{client: client, ttl: ttl, pollInterval: defaultPollInterval}
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func (l *Locker) Lock(ctx context.Context, documentID string) (func(), error) {
	key := lockPrefix + documentID
	token := uuid.NewString()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", documentID, err)
		}
		if acquired {
			break
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			slog.Warn("document_lock_release_failed", "document_id", documentID, "error", err)
		}
	}, nil
}

func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
