package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type TrialChecker interface {
	Blocks(user *model.User) bool
}

// TrialGate stops users whose trial ended without a license activation.
// Exempt routes and unauthenticated requests pass.
func TrialGate(routes *RouteTable, trials TrialChecker, m *metrics.Metrics, redirectTo string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if routes.Is(c.Request.URL.Path, RouteTrialExempt) {
			c.Next()
			return
		}
		user := requestctx.User(c)
		if user == nil || !trials.Blocks(user) {
			allow(c, m, GateTrial)
			return
		}

		log.Warn().
			Str("user_id", user.ID.String()).
			Str("path", c.Request.URL.Path).
			Msg("trial expired")
		deny(c, m, GateTrial, apperrors.TrialExpired(), redirectTo)
	}
}
