package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	authsvc "github.com/jwalitptl/clinic-api/internal/service/auth"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// AccessTokenCookie carries the access token for browser sessions
const AccessTokenCookie = "access_token"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

type AuthMiddleware struct {
	auth      Authenticator
	metrics   *metrics.Metrics
	loginPath string
}

func NewAuthMiddleware(auth Authenticator, m *metrics.Metrics, loginPath string) *AuthMiddleware {
	return &AuthMiddleware{auth: auth, metrics: m, loginPath: loginPath}
}

// Authenticate resolves the bearer token (or session cookie) to an active
// user and stores it in the request context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			deny(c, m.metrics, GateAuth, apperrors.Unauthenticated("authentication required"), m.loginPath)
			return
		}

		user, err := m.auth.Authenticate(c.Request.Context(), token)
		switch {
		case errors.Is(err, authsvc.ErrAccountDeactivated):
			deny(c, m.metrics, GateAuth, apperrors.AccountDeactivated(), m.loginPath)
			return
		case errors.Is(err, authsvc.ErrInvalidCredentials):
			deny(c, m.metrics, GateAuth, apperrors.Unauthenticated("invalid or expired token"), m.loginPath)
			return
		case err != nil:
			log.Error().Err(err).Msg("authentication lookup failed")
			httputil.AbortWithError(c, apperrors.Internal(err))
			return
		}

		requestctx.SetUser(c, user)
		allow(c, m.metrics, GateAuth)
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}
