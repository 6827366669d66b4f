package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/requestctx"
	"github.com/jwalitptl/clinic-api/pkg/cache"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RateLimit counts requests per user, or per client IP when anonymous, in a
// fixed window kept in the cache store. The counter and its expiry are two
// round trips, so concurrent first hits can stretch a window slightly.
// A store failure lets the request through.
func RateLimit(store cache.Store, cfg RateLimitConfig, m *metrics.Metrics) gin.HandlerFunc {
	if cfg.Requests <= 0 {
		cfg.Requests = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *gin.Context) {
		key := rateLimitKey(c)
		count, ttl, err := store.Incr(c.Request.Context(), key, cfg.Window)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("rate limit counter unavailable")
			c.Next()
			return
		}
		if ttl <= 0 {
			ttl = cfg.Window
		}

		remaining := int64(cfg.Requests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if count > int64(cfg.Requests) {
			m.Limited("client")
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(ttl.Seconds()))))
			httputil.AbortWithError(c, apperrors.New(
				apperrors.KindRateLimited,
				apperrors.CodeRateLimitExceeded,
				"too many requests, please slow down",
				nil,
			))
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if user := requestctx.User(c); user != nil {
		return fmt.Sprintf("rl:user:%s", user.ID)
	}
	return fmt.Sprintf("rl:ip:%s", c.ClientIP())
}
