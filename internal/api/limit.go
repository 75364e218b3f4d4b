package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Gopher0727/ChatTimeline/config"
)

// waitTimeout is used when the configured wait is not positive.
const waitTimeout = 50 * time.Millisecond

// RateLimit 令牌桶限流中间件
// 请求先等待令牌, 超过 cfg.WaitTimeout 仍未拿到才拒绝, 以平滑瞬时突发
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.QPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := max(cfg.Burst, 1)
	wait := cfg.WaitTimeout
	if wait <= 0 {
		wait = waitTimeout
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.QPS), burst)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
		err := limiter.Wait(ctx)
		cancel()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many events, try again later",
			})
			return
		}
		c.Next()
	}
}

// MaxConcurrency 最大并发控制中间件, 超出直接拒绝
func MaxConcurrency(maxConcurrent int) gin.HandlerFunc {
	if maxConcurrent <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	// 带缓冲的 channel 作为信号量
	sem := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "too many concurrent requests",
			})
		}
	}
}
