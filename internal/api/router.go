package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/ChatTimeline/config"
	logger "github.com/Gopher0727/ChatTimeline/middleware/log"
)

const traceHeader = "X-Trace-ID"

// NewRouter builds the gin engine serving the timeline.
func NewRouter(h *Handler, cfg *config.ServerConfig, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), TraceID(), RequestLogger(log), MaxConcurrency(cfg.MaxConcurrent))
	RegisterRoutes(r, h, RateLimit(cfg.RateLimit))
	return r
}

// RegisterRoutes registers all API routes. eventMiddlewares only guard event
// submission.
func RegisterRoutes(r *gin.Engine, h *Handler, eventMiddlewares ...gin.HandlerFunc) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		api.GET("/timeline", h.GetTimeline)
		api.GET("/notables", h.GetNotables)
		api.GET("/messages/:id", h.GetMessage)
		api.POST("/events", append(eventMiddlewares, h.PostEvent)...)
	}
}

// TraceID reuses the caller's X-Trace-ID or generates one, and stores it in
// the request context so engine logs carry it.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.WithTraceID(c.Request.Context(), c.GetHeader(traceHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(traceHeader, logger.GetTraceID(ctx))
		c.Next()
	}
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", statusCode),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}

		ctx := c.Request.Context()
		if statusCode >= 500 {
			log.ErrorContext(ctx, "server error", fields...)
		} else if statusCode >= 400 {
			log.WarnContext(ctx, "client error", fields...)
		} else {
			log.DebugContext(ctx, "request completed", fields...)
		}
	}
}
