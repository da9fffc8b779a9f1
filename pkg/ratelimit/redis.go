package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for atomic reserve on a shared bucket.
// Time comes from the Redis server so every instance sees the same boundaries.
// Returns wait in milliseconds, or -1 when the next refill cannot cover the request.
const reserveScript = `
local key = KEYS[1]
local per = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local n = tonumber(ARGV[3])

local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local boundary = now - (now % interval)

local state = redis.call('HMGET', key, 'tokens', 'window')
local tokens = tonumber(state[1])
local window = tonumber(state[2])
if tokens == nil or window == nil then
    tokens = per
    window = boundary
end

if boundary > window then
    local k = math.floor((boundary - window) / interval)
    tokens = math.min(per, tokens + k * per)
    window = boundary
end

local wait = 0
if tokens >= n then
    tokens = tokens - n
elseif tokens - n + per >= 0 then
    tokens = tokens - n
    wait = window + interval - now
else
    return -1
end

redis.call('HSET', key, 'tokens', tokens, 'window', window)
redis.call('PEXPIRE', key, interval * 2)
return wait
`

// Lua script returning reserved tokens, capped at bucket capacity
const cancelScript = `
local key = KEYS[1]
local per = tonumber(ARGV[1])
local n = tonumber(ARGV[2])

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
if tokens == nil then
    return 0
end
tokens = math.min(per, tokens + n)
redis.call('HSET', key, 'tokens', tokens)
return tokens
`

// Evaler - подмножество redis.Cmdable, нужное backend'у (*redis.Client, *redis.ClusterClient)
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisBackend общее для всех инстансов состояние вёдер в Redis
type RedisBackend struct {
	client Evaler
	prefix string
}

// NewRedisBackend создаёт backend поверх Redis
func NewRedisBackend(client Evaler, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

// Reserve реализует Backend
func (r *RedisBackend) Reserve(ctx context.Context, key string, cfg Config, n int64) (time.Duration, error) {
	if n <= 0 {
		return 0, nil
	}
	if n > cfg.TokensPerInterval {
		return 0, fmt.Errorf("%w: %d tokens requested, bucket holds %d", ErrRateLimited, n, cfg.TokensPerInterval)
	}

	waitMs, err := r.client.Eval(ctx, reserveScript, []string{r.prefix + key},
		cfg.TokensPerInterval, cfg.Interval.Duration().Milliseconds(), n).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis reserve %s: %w", key, err)
	}
	if waitMs < 0 {
		return 0, ErrRateLimited
	}
	return time.Duration(waitMs) * time.Millisecond, nil
}

// Cancel реализует Backend
func (r *RedisBackend) Cancel(ctx context.Context, key string, cfg Config, n int64) error {
	err := r.client.Eval(ctx, cancelScript, []string{r.prefix + key}, cfg.TokensPerInterval, n).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("redis cancel %s: %w", key, err)
	}
	return nil
}
