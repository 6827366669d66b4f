package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/requestctx"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

// Recovery turns a panic into a 500 envelope. The log line carries the
// user and clinic the gates had resolved when the handler failed.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			rc := requestctx.From(c)
			event := log.Error().
				Interface("error", err).
				Bytes("stack", debug.Stack()).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Str("request_id", rc.RequestID)
			if rc.User != nil {
				event = event.Str("user_id", rc.User.ID.String())
			}
			if rc.HasClinic() {
				event = event.Str("clinic_id", rc.ClinicID.String())
			}
			event.Msg("request panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				httputil.NewErrorEnvelope(apperrors.CodeInternal, "internal server error"))
		}()
		c.Next()
	}
}
