package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tip-mds/clinic-api/pkg/logger"
)

// Logger emits one structured line per request.
func Logger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		event := l.ZL.Info()
		if c.Writer.Status() >= 500 {
			event = l.ZL.Error()
		}
		event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
