package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wekezahq/nexus/pkg/common"
	"github.com/wekezahq/nexus/pkg/logger"
	"go.uber.org/zap"
)

// Recovery middleware recovers from panics
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)

				common.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
				c.Abort()
			}
		}()

		c.Next()
	}
}
