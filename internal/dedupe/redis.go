package dedupe

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "storefront-bridge:dedupe:"

// RedisStore shares fingerprints between bridge instances. SET NX makes the
// check and the insert a single atomic step.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a store whose entries expire after ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, prefix: defaultKeyPrefix}
}

func (s *RedisStore) Claim(ctx context.Context, fingerprint string) (bool, error) {
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ok, err := s.client.SetNX(ctx, s.prefix+fingerprint, stamp, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe: redis setnx: %w", err)
	}
	return ok, nil
}
