package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"tradeflow.com/pkg/common"
	"tradeflow.com/pkg/logger"
	"tradeflow.com/pkg/ratelimit"
	"tradeflow.com/pkg/xerr"
)

func RateLimit(store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		if !store.Allow(key) {
			// 限流属于“可控拒绝”，不打堆栈
			logger.Warn(c.Request.Context(), "http rate limited",
				zap.String("request_id", common.RequestIDFromGin(c)),
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			common.Fail(c, http.StatusTooManyRequests, xerr.RateLimited, xerr.MapErrMsg(xerr.RateLimited))
			c.Abort()
			return
		}
		c.Next()
	}
}
