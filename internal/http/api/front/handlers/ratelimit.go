package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/estateiq/estateiq/internal/metrics"
	"github.com/estateiq/estateiq/internal/ratelimit"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RateLimitMiddleware throttles authenticated users per scope. A nil limiter lets everything through.
func RateLimitMiddleware(limiter *ratelimit.Manager, scope ratelimit.Scope, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := getUserID(c)
		if limiter == nil || userID == "" {
			c.Next()
			return
		}

		result, decision, errCheck := limiter.Check(c.Request.Context(), userID, scope)
		if errCheck != nil {
			log.WithError(errCheck).WithField("scope", scope).Warn("rate limit check failed")
			c.Next()
			return
		}
		if decision.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if result.Allowed {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(time.Until(result.Reset).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		if scope == ratelimit.ScopeAnalyze {
			m.ObserveAnalysis(metrics.OutcomeRateLimited)
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests", "code": CodeRateLimited})
	}
}
