package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/USA-RedDragon/divi-gateway/internal/config"
	"github.com/USA-RedDragon/divi-gateway/internal/envelope"
	"github.com/USA-RedDragon/divi-gateway/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 10 * time.Minute
	limiterMaxIdle       = 30 * time.Minute
)

// clientLimiter is one client's token bucket plus the last time that
// client was seen, so idle buckets can be swept.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// rateLimitMiddleware throttles clients by IP, a token bucket each.
// Rejected requests get the usual envelope with a 429.
func rateLimitMiddleware(config config.RateLimit, serverMetrics *metrics.Metrics) gin.HandlerFunc {
	limiters := xsync.NewMapOf[string, *clientLimiter]()
	perSecond := rate.Limit(config.RequestsPerMinute / 60)
	go sweepLimiters(limiters)

	return func(c *gin.Context) {
		entry, _ := limiters.LoadOrCompute(c.ClientIP(), func() *clientLimiter {
			return &clientLimiter{limiter: rate.NewLimiter(perSecond, config.Burst)}
		})
		entry.lastSeen.Store(time.Now().UnixNano())
		if !entry.limiter.Allow() {
			serverMetrics.IncrementRateLimitedRequests()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, envelope.ClientError("Too many requests. Try again later."))
			return
		}
		c.Next()
	}
}

func sweepLimiters(limiters *xsync.MapOf[string, *clientLimiter]) {
	for range time.Tick(limiterSweepInterval) {
		cutoff := time.Now().Add(-limiterMaxIdle).UnixNano()
		limiters.Range(func(ip string, entry *clientLimiter) bool {
			if entry.lastSeen.Load() < cutoff {
				limiters.Delete(ip)
			}
			return true
		})
	}
}
