package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const (
	GateAuth       = "auth"
	GateTrial      = "trial"
	GateLicense    = "license"
	GateFeature    = "license_feature"
	GateUsage      = "license_usage"
	GatePermission = "permission"
	GateClinic     = "clinic"
)

func allow(c *gin.Context, m *metrics.Metrics, gate string) {
	m.Gate(gate, metrics.OutcomeAllowed, "")
	c.Next()
}

// deny ends the request at gate. Browser requests are redirected when
// redirectTo is set.
func deny(c *gin.Context, m *metrics.Metrics, gate string, err *apperrors.AppError, redirectTo string) {
	outcome := metrics.OutcomeDenied
	if redirectTo != "" && !httputil.WantsJSON(c) {
		outcome = metrics.OutcomeRedirect
	}
	m.Gate(gate, outcome, err.Code)
	httputil.AbortWithDenial(c, err, redirectTo)
}
