package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"celulas/membership/internal/repository"
	"celulas/membership/pkg/response"
)

// RateLimit allows perMinute requests per client IP in fixed one-minute
// windows, counted in store. A non-positive perMinute disables the limit.
// Counter failures let the request through.
func RateLimit(store repository.StateStore, scope string, perMinute int, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if perMinute <= 0 {
			c.Next()
			return
		}

		window := time.Now().Unix() / 60
		key := "rl:" + scope + ":" + c.ClientIP() + ":" + strconv.FormatInt(window, 10)
		n, err := store.Incr(c.Request.Context(), key, time.Minute)
		if err != nil {
			logger.Warn("rate limit counter unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}

		if n > int64(perMinute) {
			c.Header("Retry-After", "60")
			response.TooManyRequests(c, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
