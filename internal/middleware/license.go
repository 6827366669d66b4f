package middleware

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type LicenseChecker interface {
	ShouldRestrictApplication(ctx context.Context, user *model.User) bool
	FeatureAllowed(ctx context.Context, user *model.User, feature model.Feature) bool
	CheckUsageLimit(ctx context.Context, kind model.UsageKind) (model.UsageResult, error)
}

type LicenseMiddleware struct {
	license    LicenseChecker
	routes     *RouteTable
	metrics    *metrics.Metrics
	redirectTo string
}

func NewLicenseMiddleware(license LicenseChecker, routes *RouteTable, m *metrics.Metrics, redirectTo string) *LicenseMiddleware {
	return &LicenseMiddleware{license: license, routes: routes, metrics: m, redirectTo: redirectTo}
}

// Validate applies the global restriction check
func (m *LicenseMiddleware) Validate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.routes.Is(c.Request.URL.Path, RouteLicenseExempt) {
			c.Next()
			return
		}
		if m.license.ShouldRestrictApplication(c.Request.Context(), requestctx.User(c)) {
			deny(c, m.metrics, GateLicense, apperrors.LicenseRestriction(
				apperrors.CodeLicenseValidationFailed,
				"a valid license is required to use the application",
			), m.redirectTo)
			return
		}
		allow(c, m.metrics, GateLicense)
	}
}

// RequireFeature admits the request only when the feature is licensed.
// An unknown feature name is a route configuration error and denies.
func (m *LicenseMiddleware) RequireFeature(name string) gin.HandlerFunc {
	feature := model.Feature(name)
	known := feature.Valid()
	if !known {
		log.Error().Str("feature", name).Msg("route requires unknown license feature")
	}
	denial := apperrors.LicenseRestriction(
		apperrors.CodeFeatureNotAvailable,
		fmt.Sprintf("the %s feature is not available on your license", name),
	)

	return func(c *gin.Context) {
		if !known {
			log.Error().Str("feature", name).Str("path", c.Request.URL.Path).Msg("unknown license feature")
			deny(c, m.metrics, GateFeature, denial, "")
			return
		}
		if !m.license.FeatureAllowed(c.Request.Context(), requestctx.User(c), feature) {
			deny(c, m.metrics, GateFeature, denial, m.redirectTo)
			return
		}
		allow(c, m.metrics, GateFeature)
	}
}

// RequireUsage admits the request while the counted resource is below its
// ceiling. An unknown kind is a route configuration error and denies.
func (m *LicenseMiddleware) RequireUsage(name string) gin.HandlerFunc {
	kind := model.UsageKind(name)
	known := kind.Valid()
	if !known {
		log.Error().Str("usage", name).Msg("route requires unknown usage kind")
	}

	return func(c *gin.Context) {
		if !known {
			log.Error().Str("usage", name).Str("path", c.Request.URL.Path).Msg("unknown usage kind")
			deny(c, m.metrics, GateUsage, apperrors.LicenseRestriction(
				apperrors.CodeUsageLimitExceeded, fmt.Sprintf("usage limit for %s cannot be verified", name),
			), "")
			return
		}

		result, err := m.license.CheckUsageLimit(c.Request.Context(), kind)
		if err != nil {
			log.Error().Err(err).Str("usage", name).Msg("usage check failed")
			deny(c, m.metrics, GateUsage, apperrors.LicenseRestriction(
				apperrors.CodeUsageLimitExceeded, fmt.Sprintf("usage limit for %s cannot be verified", name),
			), "")
			return
		}
		if !result.Allowed {
			deny(c, m.metrics, GateUsage, apperrors.LicenseRestriction(
				apperrors.CodeUsageLimitExceeded,
				fmt.Sprintf("%s limit reached (%d of %d)", name, result.Current, result.Limit),
			), m.redirectTo)
			return
		}
		allow(c, m.metrics, GateUsage)
	}
}
