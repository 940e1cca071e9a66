package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sorted-set rolling window: drop entries older than the window, count what
// remains, admit and record if under the cap. Atomic via Lua so two
// concurrent dials cannot both sneak past the last slot.
var windowScript = redis.NewScript(`
-- KEYS[1] = window key
-- ARGV[1] = now (unix ms)
-- ARGV[2] = window_ms
-- ARGV[3] = max
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], now, tostring(now) .. '-' .. tostring(count))
redis.call('PEXPIRE', KEYS[1], window)
return 1
`)

// RedisWindow is the shared rolling-window limiter.
type RedisWindow struct {
	rdb    *redis.Client
	max    int
	period time.Duration

	Now func() time.Time
}

func NewRedisWindow(rdb *redis.Client, max int, period time.Duration) (*RedisWindow, error) {
	if rdb == nil {
		return nil, fmt.Errorf("ratelimit: redis client is nil")
	}
	if max <= 0 {
		return nil, fmt.Errorf("ratelimit: max must be > 0")
	}
	if period <= 0 {
		return nil, fmt.Errorf("ratelimit: period must be > 0")
	}
	return &RedisWindow{rdb: rdb, max: max, period: period, Now: time.Now}, nil
}

func (w *RedisWindow) Allow(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("ratelimit: key is required")
	}
	res, err := windowScript.Run(ctx, w.rdb,
		[]string{"ratelimit:calls:" + key},
		w.Now().UnixMilli(), w.period.Milliseconds(), w.max,
	).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		return ErrRateLimited
	}
	return nil
}
