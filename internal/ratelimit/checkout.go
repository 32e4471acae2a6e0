package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/dev-orchid/shiksha-sub001/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyCheckout = "checkout:%s:%s"

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
}

// CheckoutLimiter throttles gateway order creation and callback verification
// per school and client IP.
type CheckoutLimiter struct {
	enabled bool
	bucket  *TokenBucket
	policy  Policy
	log     *zap.Logger
}

func NewCheckoutLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*CheckoutLimiter, error) {
	log = log.Named("ratelimit")
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		log.Info("checkout rate limit disabled")
		return &CheckoutLimiter{log: log}, nil
	}
	policy := Policy{Rate: limitCfg.Rate, Burst: limitCfg.Burst}
	if err := policy.validate(); err != nil {
		return nil, fmt.Errorf("checkout rate limit: %w", err)
	}
	return &CheckoutLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		policy:  policy,
		log:     log,
	}, nil
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow consumes one token for the school and client. Redis failures fail
// open so an outage never blocks fee collection.
func (l *CheckoutLimiter) Allow(ctx context.Context, schoolID, clientIP string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyCheckout, strings.TrimSpace(schoolID), strings.TrimSpace(clientIP))
	res, err := l.bucket.Take(ctx, key, l.policy)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request", zap.String("school_id", schoolID), zap.Error(err))
		return &Result{Allowed: true}, nil
	}
	return res, nil
}
