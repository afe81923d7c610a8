package handler

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avelkine/identity-service/internal/dto"
	"github.com/avelkine/identity-service/internal/service"
)

// RateLimitMiddleware enforces a sliding-window limit per key. Refusals carry
// Retry-After, matching how verification cooldowns are reported.
func RateLimitMiddleware(rateLimiter *service.RateLimiter, limit int, window time.Duration, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := rateLimiter.Allow(c.Request.Context(), keyFunc(c), limit, window)
		if err != nil {
			// Redis trouble must not lock everyone out of authentication.
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(ceilSeconds(decision.RetryAfter)))
			c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   "Too Many Requests",
				Message: "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ScopedIPKey buckets anonymous traffic by client address, namespaced per
// endpoint group so exhausting the login budget does not also burn
// password-reset.
func ScopedIPKey(scope string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		return scope + ":" + c.ClientIP()
	}
}

func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
