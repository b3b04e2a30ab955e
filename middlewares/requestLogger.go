package middlewares

import (
	"log/slog"
	"time"

	"civicpulse-be/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestLogger tags the request context with a request id and logs each
// request once it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		ctx := logging.WithAttrs(c.Request.Context(), slog.String("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		}
		if userID := c.GetString("user_id"); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			logging.Error(c.Request.Context(), "request", attrs...)
		case status >= 400:
			logging.Warn(c.Request.Context(), "request", attrs...)
		default:
			logging.Info(c.Request.Context(), "request", attrs...)
		}
	}
}
