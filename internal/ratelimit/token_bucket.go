package ratelimit

import (
	"context"
	"errors"
	"strconv"

	redis "github.com/redis/go-redis/v9"
)

// The bucket state lives in one hash per key. Time comes from the redis
// server so all app instances refill against the same clock. The reply is
// {allowed, tokens * 1000, ts_ms}; tokens are scaled because lua numbers
// are truncated to integers on the way out.
var tokenBucketScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (tonumber(nowData[1]) * 1000) + math.floor(tonumber(nowData[2]) / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil or ts == nil then
  tokens = burst
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens * 1000), now}
`)

// TokenBucket is the shared limiter used when redis is configured.
type TokenBucket struct {
	client *redis.Client
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Decision, error) {
	if t == nil || t.client == nil {
		return Decision{}, errors.New("rate limiter not configured")
	}
	if err := validatePolicy(key, rate, burst); err != nil {
		return Decision{}, err
	}

	reply, err := tokenBucketScript.Run(ctx, t.client, []string{key},
		strconv.FormatFloat(rate, 'f', -1, 64),
		burst,
		bucketTTL(rate, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(reply) < 2 {
		return Decision{}, errors.New("invalid rate limit script response")
	}
	return newDecision(reply[0] == 1, burst, float64(reply[1])/1000, rate), nil
}
