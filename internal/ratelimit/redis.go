package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketLua refills and drains a bucket atomically.
// KEYS[1] bucket; ARGV: now_ms, rate, burst, cost, ttl_ms.
// Returns {allowed, tokens_left, retry_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
else
  local delta = math.max(0, now_ms - ts)
  tokens = math.min(burst, tokens + (delta / 1000.0) * rate)
end

local allowed = 0
local retry_ms = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
elseif rate > 0 then
  retry_ms = math.floor(((cost - tokens) / rate) * 1000.0)
else
  retry_ms = 1000
end

redis.call("HSET", key, "tokens", tokens, "ts", now_ms)
redis.call("PEXPIRE", key, ttl_ms)
return {allowed, tostring(tokens), retry_ms}
`)

// RedisLimiter shares buckets across replicas through a Redis hash per key.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisLimiter(rdb redis.UniversalClient, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLimiter{rdb: rdb, prefix: "vt:", ttl: ttl}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, rps float64, burst float64, cost float64) (Decision, error) {
	now := time.Now().UnixMilli()
	res, err := tokenBucket.Run(ctx, r.rdb, []string{r.prefix + key}, now, rps, burst, cost, r.ttl.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("token bucket: unexpected reply %v", res)
	}

	dec := Decision{
		Allowed:   toInt(res[0]) == 1,
		Remaining: toFloat(res[1]),
		LimitRPS:  rps,
		Burst:     burst,
	}
	if !dec.Allowed {
		dec.RetryAfterSeconds = int((toInt(res[2]) + 999) / 1000)
	}
	return dec, nil
}

func (r *RedisLimiter) Backend() string { return "redis" }

func (r *RedisLimiter) Close() error { return r.rdb.Close() }

func toInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// Lua numbers are truncated to integers on the way out, so tokens travel as a string.
func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		var f float64
		if _, err := fmt.Sscan(t, &f); err != nil {
			return 0
		}
		return f
	case int64:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}
