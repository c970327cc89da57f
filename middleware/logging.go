package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request and recovers handler panics.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Handler panicked", zap.Any("panic", r), zap.String("path", c.Request.URL.Path))
				c.AbortWithStatus(http.StatusInternalServerError)
			}
			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", c.Writer.Status()),
				zap.String("client_ip", c.ClientIP()),
				zap.Duration("latency", time.Since(start)),
			}
			if errs := c.Errors.String(); errs != "" {
				fields = append(fields, zap.String("errors", errs))
			}
			switch {
			case c.Writer.Status() >= 500:
				logger.Error("Request", fields...)
			case c.Writer.Status() >= 400:
				logger.Warn("Request", fields...)
			default:
				logger.Info("Request", fields...)
			}
		}()
		c.Next()
	}
}
