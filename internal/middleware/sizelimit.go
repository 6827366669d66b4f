package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

// BodyLimit rejects declared bodies above max and caps the reader for the
// rest
func BodyLimit(max int64) gin.HandlerFunc {
	if max <= 0 {
		max = 1 << 20
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > max {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, httputil.NewErrorEnvelope(
				apperrors.CodeValidationFailed,
				fmt.Sprintf("request body exceeds %d bytes", max),
			))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}
