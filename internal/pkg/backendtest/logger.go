// internal/pkg/backendtest/logger.go
package backendtest

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// requestLogger logs each request with the id the client sent
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"request_id":      c.GetHeader("X-Request-ID"),
			"idempotency_key": c.GetHeader("Idempotency-Key"),
			"method":          c.Request.Method,
			"path":            c.Request.URL.Path,
			"status_code":     status,
			"latency":         time.Since(start),
		})

		switch {
		case status >= 500:
			entry.Error("Fake backend request completed with server error")
		case status >= 400:
			entry.Warn("Fake backend request completed with client error")
		default:
			entry.Info("Fake backend request completed successfully")
		}
	}
}
