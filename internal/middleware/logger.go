package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ayurflow/clinic-api/pkg/logger"
)

// Logger logs one line per request after it completes.
func Logger(log *logger.Logger) gin.HandlerFunc {
	httpLog := log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		event := httpLog.Zerolog().Info()
		if c.Writer.Status() >= 500 {
			event = httpLog.Zerolog().Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(ContextRequestID)).
			Msg("request")
	}
}
