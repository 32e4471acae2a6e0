package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrBucketDisabled = errors.New("rate limiter not configured")
	ErrInvalidPolicy  = errors.New("rate limiter policy must be positive")
	ErrEmptyBucketKey = errors.New("rate limiter key is empty")
)

// refillScript keeps {tokens, ts} in a hash and refills lazily from the redis
// clock. Remaining tokens come back as a string so fractions survive.
var refillScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) * rate / 1000)
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {allowed, tostring(tokens), now}
`)

// Policy is a refill rate in tokens per second and the bucket capacity.
type Policy struct {
	Rate  float64
	Burst int
}

func (p Policy) validate() error {
	if p.Rate <= 0 || p.Burst <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// idleTTL is how long an untouched bucket lives: twice a full refill, at
// least one second.
func (p Policy) idleTTL() time.Duration {
	if p.validate() != nil {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(2*float64(p.Burst)/p.Rate))
	return time.Duration(seconds) * time.Second
}

// retryAfter is the wait until one whole token is available again.
func (p Policy) retryAfter(remaining float64) time.Duration {
	missing := 1 - remaining
	if missing <= 0 || p.Rate <= 0 {
		return 0
	}
	return time.Duration(missing / p.Rate * float64(time.Second))
}

// Result describes one bucket decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type TokenBucket struct {
	client *redis.Client
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Take consumes one token from the bucket stored under key.
func (t *TokenBucket) Take(ctx context.Context, key string, policy Policy) (*Result, error) {
	denied := &Result{Limit: policy.Burst}
	switch {
	case t == nil || t.client == nil:
		return denied, ErrBucketDisabled
	case key == "":
		return denied, ErrEmptyBucketKey
	}
	if err := policy.validate(); err != nil {
		return denied, err
	}

	reply, err := refillScript.Run(ctx, t.client, []string{key},
		policy.Rate, policy.Burst, policy.idleTTL().Milliseconds()).Slice()
	if err != nil {
		return denied, err
	}
	allowed, remaining, nowMillis, err := decodeReply(reply)
	if err != nil {
		return denied, err
	}

	res := &Result{
		Allowed:   allowed,
		Limit:     policy.Burst,
		Remaining: int(remaining),
		ResetTime: time.UnixMilli(nowMillis),
	}
	if !allowed {
		res.RetryAfter = policy.retryAfter(remaining)
		res.ResetTime = res.ResetTime.Add(res.RetryAfter)
	}
	return res, nil
}

func decodeReply(reply []interface{}) (bool, float64, int64, error) {
	if len(reply) != 3 {
		return false, 0, 0, fmt.Errorf("rate limiter: unexpected reply length %d", len(reply))
	}
	flag, ok := reply[0].(int64)
	if !ok {
		return false, 0, 0, fmt.Errorf("rate limiter: unexpected allowed value %T", reply[0])
	}
	raw, ok := reply[1].(string)
	if !ok {
		return false, 0, 0, fmt.Errorf("rate limiter: unexpected tokens value %T", reply[1])
	}
	remaining, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, 0, 0, fmt.Errorf("rate limiter: parse tokens: %w", err)
	}
	now, ok := reply[2].(int64)
	if !ok {
		return false, 0, 0, fmt.Errorf("rate limiter: unexpected clock value %T", reply[2])
	}
	return flag == 1, remaining, now, nil
}
