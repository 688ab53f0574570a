package middleware

import (
	"errors"
	"net/http"

	"smmpanel/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error converts the last error attached to the context into the JSON error
// envelope. Unclassified errors become a generic 500 so raw messages never
// leak to clients.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var base errutil.BaseError
		if errors.As(last.Err, &base) {
			c.JSON(base.Code.HTTPStatus(), gin.H{
				"success": false,
				"error":   base.Message,
				"details": base.Details,
			})
			return
		}

		zap.L().Error("unhandled request error",
			zap.String("path", c.Request.URL.Path),
			zap.Error(last.Err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal server error",
		})
	}
}
