package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const windowKeyPrefix = "storefront-bridge:ratelimit:"

// slidingWindowScript trims the log, admits the hit when there is room and
// reports {allowed, count, reset_ms}. Scores are unix milliseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end

local reset = window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window - now
end
if count > 0 then
  redis.call('PEXPIRE', key, window)
end
return {allowed, count, reset}
`)

// RedisWindowStore shares sliding windows between bridge instances.
type RedisWindowStore struct {
	client *redis.Client
	prefix string
}

func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client, prefix: windowKeyPrefix}
}

func (s *RedisWindowStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (WindowResult, error) {
	vals, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return WindowResult{}, fmt.Errorf("ratelimit: redis window: %w", err)
	}
	if len(vals) != 3 {
		return WindowResult{}, fmt.Errorf("ratelimit: unexpected script reply %v", vals)
	}
	return WindowResult{
		Allowed: vals[0] == 1,
		Count:   int(vals[1]),
		Reset:   time.Duration(vals[2]) * time.Millisecond,
	}, nil
}
