// internal/middleware/recovery_middleware.go
package middleware

import (
	"net/http"

	"subwatch-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware converts handler panics into a 500 response. The
// webhook route depends on this: Telegram retries any dropped update, so
// a panicking handler must still produce a response.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panicked",
					zap.Any("panic", r),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				response.Error(c, http.StatusInternalServerError, "unexpected server error", nil)
			}
		}()
		c.Next()
	}
}
