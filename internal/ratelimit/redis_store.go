package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:v1:"

// hitScript returns {count, pttl, recorded}. A key left without a TTL is
// treated as a fresh window.
var hitScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
if current > 0 and ttl < 0 then
  redis.call('DEL', KEYS[1])
  current = 0
end
if current >= tonumber(ARGV[2]) then
  return {current, ttl, 0}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {current, redis.call('PTTL', KEYS[1]), 1}
`)

// RedisStore shares counters across instances. The read-modify-write runs
// as one Lua script so concurrent hits never lose increments.
type RedisStore struct {
	client redis.Scripter
	now    func() time.Time
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res, err := hitScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, window.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return Entry{}, false, fmt.Errorf("rate limit hit: %w", err)
	}
	if len(res) != 3 {
		return Entry{}, false, fmt.Errorf("rate limit hit: unexpected reply %v", res)
	}

	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = 0
	}
	return Entry{Count: int(res[0]), ExpiresAt: s.now().Add(ttl)}, res[2] == 1, nil
}
