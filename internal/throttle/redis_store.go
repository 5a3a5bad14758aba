package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistributedStore shares throttle state across multiple importer
// processes that target the same source, so one process's throttle
// signal is visible to the others without waiting for their own next
// fault. This is optional infrastructure for a future multi-process
// mode (see spec Open Questions); the in-process Tracker above never
// depends on it.
type DistributedStore interface {
	Throttle(ctx context.Context, source string, retryAfter time.Duration) error
	IsThrottled(ctx context.Context, source string) (bool, error)
}

// RedisStore is a DistributedStore backed by Redis: one key per
// source, holding the retry-after duration as an integer count of
// nanoseconds, with the key's own TTL
// doubling as the expiry so stale entries self-prune.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a RedisStore over an existing client. prefix
// namespaces keys (e.g. by run id) so concurrent runs do not collide.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "recordflow:throttle"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(source string) string {
	return fmt.Sprintf("%s:%s", s.prefix, source)
}

func (s *RedisStore) Throttle(ctx context.Context, source string, retryAfter time.Duration) error {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return s.client.Set(ctx, s.key(source), strconv.FormatInt(int64(retryAfter), 10), retryAfter).Err()
}

func (s *RedisStore) IsThrottled(ctx context.Context, source string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(source)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
