package middleware

import (
	"errors"
	"net/http"

	"meeple-backoffice/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error attached to the gin context using the
// errutil taxonomy. Unknown errors become opaque 500s.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal error",
			},
		})
	}
}
