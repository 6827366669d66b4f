package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const (
	ClinicParam  = "clinic_id"
	ClinicHeader = "X-Clinic-ID"
	// ClinicCookie holds the clinic picked in the browser session
	ClinicCookie = "current_clinic_id"

	maxPeekBody = 1 << 20
)

type PermissionChecker interface {
	IsSuperAdmin(ctx context.Context, user *model.User) bool
	HasAnyPermissionInClinic(ctx context.Context, user *model.User, perms []model.PermissionSlug, clinicID uuid.UUID) bool
	HasAllPermissionsInClinic(ctx context.Context, user *model.User, perms []model.PermissionSlug, clinicID uuid.UUID) bool
	HasAnyRoleInClinic(ctx context.Context, userID, clinicID uuid.UUID) bool
}

type PermissionMiddleware struct {
	rbac    PermissionChecker
	metrics *metrics.Metrics
}

func NewPermissionMiddleware(rbac PermissionChecker, m *metrics.Metrics) *PermissionMiddleware {
	return &PermissionMiddleware{rbac: rbac, metrics: m}
}

// RequirePermission admits users holding any of perms in the resolved
// clinic. It panics while routes are built when a slug is outside the
// catalog.
func (m *PermissionMiddleware) RequirePermission(perms ...model.PermissionSlug) gin.HandlerFunc {
	mustBeCatalogued("RequirePermission", perms)
	return m.gate(perms, m.rbac.HasAnyPermissionInClinic)
}

// RequireAllPermissions admits users holding every one of perms in the
// resolved clinic
func (m *PermissionMiddleware) RequireAllPermissions(perms ...model.PermissionSlug) gin.HandlerFunc {
	mustBeCatalogued("RequireAllPermissions", perms)
	return m.gate(perms, m.rbac.HasAllPermissionsInClinic)
}

type permissionTest func(ctx context.Context, user *model.User, perms []model.PermissionSlug, clinicID uuid.UUID) bool

func mustBeCatalogued(name string, perms []model.PermissionSlug) {
	if len(perms) == 0 {
		panic("middleware: " + name + " needs at least one permission")
	}
	for _, p := range perms {
		if !p.Valid() {
			panic(fmt.Sprintf("middleware: unknown permission %q", p))
		}
	}
}

func (m *PermissionMiddleware) gate(perms []model.PermissionSlug, holds permissionTest) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requestctx.User(c)
		if user == nil {
			deny(c, m.metrics, GatePermission, apperrors.Unauthenticated("authentication required"), "")
			return
		}

		clinicID, _ := ResolveClinic(c)
		if !holds(c.Request.Context(), user, perms, clinicID) {
			log.Warn().
				Str("user_id", user.ID.String()).
				Str("clinic_id", clinicID.String()).
				Str("permission", joinSlugs(perms)).
				Msg("permission denied")
			deny(c, m.metrics, GatePermission, apperrors.Forbidden(
				apperrors.CodeInsufficientPermissions,
				fmt.Sprintf("you do not have permission to perform this action (%s)", joinSlugs(perms)),
			), "")
			return
		}
		allow(c, m.metrics, GatePermission)
	}
}

// RequireSuperAdmin admits superadmins only. It guards state shared by every
// clinic, where a permission held in one clinic proves nothing.
func (m *PermissionMiddleware) RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requestctx.User(c)
		if user == nil {
			deny(c, m.metrics, GatePermission, apperrors.Unauthenticated("authentication required"), "")
			return
		}
		if !m.rbac.IsSuperAdmin(c.Request.Context(), user) {
			log.Warn().
				Str("user_id", user.ID.String()).
				Str("path", c.Request.URL.Path).
				Msg("superadmin route denied")
			deny(c, m.metrics, GatePermission, apperrors.Forbidden(
				apperrors.CodeInsufficientPermissions, "this action is reserved for superadmins",
			), "")
			return
		}
		allow(c, m.metrics, GatePermission)
	}
}

// ClinicAccess admits users holding some role in the resolved clinic
func (m *PermissionMiddleware) ClinicAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := requestctx.User(c)
		if user == nil {
			deny(c, m.metrics, GateClinic, apperrors.Unauthenticated("authentication required"), "")
			return
		}

		clinicID, ok := ResolveClinic(c)
		if !ok {
			deny(c, m.metrics, GateClinic, apperrors.Forbidden(
				apperrors.CodeNoClinicAccess, "a clinic must be selected for this request",
			), "")
			return
		}
		if m.rbac.IsSuperAdmin(c.Request.Context(), user) || m.rbac.HasAnyRoleInClinic(c.Request.Context(), user.ID, clinicID) {
			allow(c, m.metrics, GateClinic)
			return
		}
		deny(c, m.metrics, GateClinic, apperrors.Forbidden(
			apperrors.CodeClinicAccessDenied, "you do not have access to this clinic",
		), "")
	}
}

// ResolveClinic finds the clinic a request targets: the route parameter,
// then a JSON body clinic_id, then the X-Clinic-ID header, then the session
// cookie. The result is stored in the request context.
func ResolveClinic(c *gin.Context) (uuid.UUID, bool) {
	rc := requestctx.From(c)
	if rc.HasClinic() {
		return rc.ClinicID, true
	}

	candidates := []func(*gin.Context) string{
		func(c *gin.Context) string { return c.Param(ClinicParam) },
		bodyClinicID,
		func(c *gin.Context) string { return c.GetHeader(ClinicHeader) },
		func(c *gin.Context) string {
			v, _ := c.Cookie(ClinicCookie)
			return v
		},
	}
	for _, source := range candidates {
		raw := strings.TrimSpace(source(c))
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			// a malformed higher priority source hides the lower ones
			return uuid.Nil, false
		}
		rc.ClinicID = id
		return id, true
	}
	return uuid.Nil, false
}

type clinicBody struct {
	ClinicID string `json:"clinic_id"`
}

// bodyClinicID peeks at a JSON body and restores it for the handler
func bodyClinicID(c *gin.Context) string {
	if c.Request.Body == nil || !strings.HasPrefix(c.ContentType(), "application/json") {
		return ""
	}
	rest := c.Request.Body
	body, err := io.ReadAll(io.LimitReader(rest, maxPeekBody))
	c.Request.Body = readCloser{io.MultiReader(bytes.NewReader(body), rest), rest}
	if err != nil || len(body) == 0 {
		return ""
	}
	var b clinicBody
	if err := binding.JSON.BindBody(body, &b); err != nil {
		return ""
	}
	return b.ClinicID
}

type readCloser struct {
	io.Reader
	io.Closer
}

func joinSlugs(perms []model.PermissionSlug) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = string(p)
	}
	return strings.Join(parts, ", ")
}
