package window

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"covercheck/internal/admission/models"
)

const redisKeyPrefix = "adm:win:"

// allowScript performs the whole sliding-window step server-side so the
// remove-range, count, and insert are atomic across instances. Scores are
// microsecond timestamps; the returned third value is the oldest surviving
// entry's score, which drives ResetAt.
var allowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < limit then
    redis.call('ZADD', KEYS[1], now, ARGV[5])
    redis.call('PEXPIRE', KEYS[1], ttl_ms)
    allowed = 1
    count = count + 1
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {allowed, limit - count, oldest[2]}
`)

// RedisStore implements Store on a shared Redis, the production choice for
// multi-instance deployments.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore constructs a Redis-backed window store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Allow runs the atomic sliding-window script for the key.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	nowMicros := time.Now().UnixMicro()
	raw, err := allowScript.Run(ctx, s.client,
		[]string{redisKeyPrefix + key},
		nowMicros,
		window.Microseconds(),
		limit,
		window.Milliseconds(),
		uuid.NewString(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("admission window script: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) < 3 {
		return nil, fmt.Errorf("admission window script: unexpected reply %T", raw)
	}
	allowed, _ := reply[0].(int64)
	remaining, _ := reply[1].(int64)
	if remaining < 0 {
		remaining = 0
	}

	oldestMicros := nowMicros
	if str, ok := reply[2].(string); ok {
		if parsed, err := strconv.ParseFloat(str, 64); err == nil {
			oldestMicros = int64(parsed)
		}
	}

	return &models.Result{
		Allowed:   allowed == 1,
		Limit:     limit,
		Remaining: int(remaining),
		ResetAt:   time.UnixMicro(oldestMicros).Add(window),
	}, nil
}

// Reset clears the window for a key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}
