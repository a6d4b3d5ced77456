package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ashenomo/tomigaya/internal/logger"
)

const loggerKey = "logger"

// Logger logs each request with its duration and status, and stores a
// request-scoped child logger in the gin context for handlers to use.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := log.WithRequestID(GetRequestID(c))
		c.Set(loggerKey, requestLogger)

		c.Next()

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			requestLogger.Error("request completed with server error", nil, fields)
		case status >= 400:
			requestLogger.Warn("request completed with client error", fields)
		default:
			requestLogger.Info("request completed", fields)
		}
	}
}

// GetLogger retrieves the request-scoped logger from the gin context, or
// nil when the logging middleware did not run.
func GetLogger(c *gin.Context) *logger.Logger {
	if value, exists := c.Get(loggerKey); exists {
		if log, ok := value.(*logger.Logger); ok {
			return log
		}
	}
	return nil
}
