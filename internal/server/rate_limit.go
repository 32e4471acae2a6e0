package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/dev-orchid/shiksha-sub001/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const rateLimitReasonCheckout = "school-client-rate"

// CheckoutRateLimit applies the per school and client IP token bucket to
// the checkout endpoints. It is a no-op when the limiter is disabled.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}
		schoolID, ok := mustSchool(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.Allow(ctx, schoolID.String(), c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("checkout rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if res.Allowed {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		logger.FromContext(ctx).Warn("checkout rate limit exceeded",
			zap.String("reason", rateLimitReasonCheckout),
			zap.String("endpoint", endpoint),
		)
		s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonCheckout)

		retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		AbortWithError(c, ErrRateLimited)
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
