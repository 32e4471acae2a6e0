package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/dev-orchid/shiksha-sub001/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckoutLimiterDisabledWithoutRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, Rate: 1, Burst: 5}}
	assert.Nil(t, NewRedisClient(cfg))

	limiter, err := NewCheckoutLimiter(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "1", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckoutLimiterRejectsBadConfig(t *testing.T) {
	cfg := config.Config{
		Redis:     config.RedisConfig{Addr: "127.0.0.1:6379"},
		RateLimit: config.RateLimitConfig{Enabled: true, Rate: 0, Burst: 5},
	}
	client := NewRedisClient(cfg)
	require.NotNil(t, client)
	defer client.Close()

	_, err := NewCheckoutLimiter(cfg, client, zap.NewNop())
	assert.Error(t, err)
}

func TestTokenBucketValidatesArguments(t *testing.T) {
	var nilBucket *TokenBucket
	res, err := nilBucket.Take(context.Background(), "k", Policy{Rate: 1, Burst: 1})
	assert.ErrorIs(t, err, ErrBucketDisabled)
	assert.False(t, res.Allowed)

	client := NewRedisClient(config.Config{Redis: config.RedisConfig{Addr: "127.0.0.1:6379"}})
	require.NotNil(t, client)
	defer client.Close()
	bucket := NewTokenBucket(client)

	_, err = bucket.Take(context.Background(), "", Policy{Rate: 1, Burst: 1})
	assert.ErrorIs(t, err, ErrEmptyBucketKey)
	res, err = bucket.Take(context.Background(), "k", Policy{Rate: 1})
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	assert.False(t, res.Allowed)
}

func TestLockerRequiresClient(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
	var locker *Locker
	lease, err := locker.Acquire(context.Background(), "expiry", time.Second)
	assert.ErrorIs(t, err, ErrLockerDisabled)
	assert.Nil(t, lease)
	assert.NoError(t, lease.Release(context.Background()))
}

func TestLockerValidatesLease(t *testing.T) {
	client := NewRedisClient(config.Config{Redis: config.RedisConfig{Addr: "127.0.0.1:6379"}})
	require.NotNil(t, client)
	defer client.Close()
	locker := NewLocker(client)

	_, err := locker.Acquire(context.Background(), "  ", time.Second)
	assert.ErrorIs(t, err, ErrInvalidLease)
	_, err = locker.Acquire(context.Background(), "expiry", 0)
	assert.ErrorIs(t, err, ErrInvalidLease)
}

func TestPolicyTimings(t *testing.T) {
	assert.Equal(t, 10*time.Second, Policy{Rate: 1, Burst: 5}.idleTTL())
	assert.Equal(t, time.Second, Policy{Rate: 100, Burst: 1}.idleTTL())
	assert.Equal(t, time.Second, Policy{}.idleTTL())

	p := Policy{Rate: 2, Burst: 5}
	assert.Equal(t, 250*time.Millisecond, p.retryAfter(0.5))
	assert.Zero(t, p.retryAfter(1))
}

func TestDecodeReply(t *testing.T) {
	allowed, remaining, now, err := decodeReply([]interface{}{int64(1), "3.5", int64(1700000000000)})
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 3.5, remaining)
	assert.Equal(t, int64(1700000000000), now)

	_, _, _, err = decodeReply([]interface{}{int64(0), "x", int64(1)})
	assert.Error(t, err)
	_, _, _, err = decodeReply([]interface{}{int64(0)})
	assert.Error(t, err)
	_, _, _, err = decodeReply([]interface{}{"1", "1", int64(1)})
	assert.Error(t, err)
}
