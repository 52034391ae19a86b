package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"companion/internal/logger"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(c.Request.Context()).Error("panic recovered",
					"request_id", GetRequestID(c),
					"panic", fmt.Sprintf("%v", err),
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
