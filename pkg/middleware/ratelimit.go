package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopherdex.com/pkg/common"
	"gopherdex.com/pkg/logger"
	"gopherdex.com/pkg/metrics"
	"gopherdex.com/pkg/ratelimit"
)

// RateLimit 按调用方 + 路由限流；带 X-Signer 的按签名账户算，匿名请求按 IP
func RateLimit(service string, store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		who, reason := c.GetHeader(common.HeaderSigner), "signer"
		if who == "" {
			who, reason = c.ClientIP(), "ip"
		}

		if !store.Allow(reason + ":" + who + ":" + route) {
			// 限流属于可控拒绝，不打堆栈
			logger.Warn(c, "http rate limited",
				zap.String("caller", who),
				zap.String("route", route),
			)
			metrics.RateLimitBlockTotal.WithLabelValues(service, route, reason).Inc()
			common.Fail(c, http.StatusTooManyRequests, common.CodeRateLimited, "请求过于频繁")
			c.Abort()
			return
		}
		c.Next()
	}
}
