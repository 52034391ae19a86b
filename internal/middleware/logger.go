package middleware

import (
	"log/slog"
	"time"

	"companion/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDKey = "X-Request-ID"

// Logger assigns a request id, stores a request-scoped logger in the request
// context and logs start and completion.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetHeader(RequestIDKey)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)

		log := slog.Default().With(
			"request_id", requestID,
			"method", c.Request.Method,
			"path", path,
			"client_ip", c.ClientIP(),
		)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), log))
		log.Info("request started")

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		log = log.With(
			"status", status,
			"latency", latency.String(),
			"latency_ms", latency.Milliseconds(),
		)
		switch {
		case status >= 500:
			log.Error("request completed with server error")
		case status >= 400:
			log.Warn("request completed with client error")
		default:
			log.Info("request completed successfully")
		}
	}
}

// GetRequestID returns the id assigned by Logger.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
