package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	authsvc "github.com/jwalitptl/clinic-api/internal/service/auth"
	"github.com/jwalitptl/clinic-api/pkg/cache"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
	Timestamp string `json:"timestamp"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func withUser(u *model.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestctx.SetUser(c, u)
		c.Next()
	}
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clinic_id": requestctx.ClinicID(c)})
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type fakeAuth struct {
	user *model.User
	err  error
}

func (f fakeAuth) Authenticate(_ context.Context, token string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if token != "good" {
		return nil, authsvc.ErrInvalidCredentials
	}
	return f.user, nil
}

func TestAuthenticate(t *testing.T) {
	user := &model.User{Base: model.Base{ID: uuid.New()}, IsActive: true}

	cases := []struct {
		name   string
		auth   fakeAuth
		header string
		status int
		code   string
	}{
		{"missing token", fakeAuth{user: user}, "", http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"bad scheme", fakeAuth{user: user}, "Basic good", http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"invalid token", fakeAuth{user: user}, "Bearer nope", http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"deactivated", fakeAuth{err: authsvc.ErrAccountDeactivated}, "Bearer good", http.StatusUnauthorized, "ACCOUNT_DEACTIVATED"},
		{"lookup failure", fakeAuth{err: errors.New("db down")}, "Bearer good", http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"valid", fakeAuth{user: user}, "Bearer good", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/api/v1/clinics", NewAuthMiddleware(tc.auth, nil, "/login").Authenticate(), func(c *gin.Context) {
				assert.Equal(t, user, requestctx.User(c))
				c.Status(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/clinics", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(r, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.code != "" {
				env := decode(t, w)
				assert.False(t, env.Success)
				assert.Equal(t, tc.code, env.ErrorCode)
				assert.NotEmpty(t, env.Timestamp)
			}
		})
	}
}

func TestAuthenticate_BrowserRedirect(t *testing.T) {
	r := gin.New()
	r.GET("/dashboard", NewAuthMiddleware(fakeAuth{}, nil, "/login").Authenticate(), ok)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Accept", "text/html")
	w := serve(r, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), httputil.FlashCookie)
}

func TestAuthenticate_Cookie(t *testing.T) {
	user := &model.User{Base: model.Base{ID: uuid.New()}, IsActive: true}
	r := gin.New()
	r.GET("/dashboard", NewAuthMiddleware(fakeAuth{user: user}, nil, "/login").Authenticate(), ok)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "good"})
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

type fakeTrial bool

func (f fakeTrial) Blocks(*model.User) bool { return bool(f) }

func TestTrialGate(t *testing.T) {
	user := &model.User{Base: model.Base{ID: uuid.New()}}
	routes := DefaultRouteTable()

	r := gin.New()
	r.Use(withUser(user), TrialGate(routes, fakeTrial(true), nil, "/license"))
	r.GET("/api/v1/clinics", ok)
	r.GET("/api/v1/license", ok)
	r.GET("/patients", ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "TRIAL_EXPIRED", decode(t, w).ErrorCode)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/license", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	req.Header.Set("Accept", "text/html")
	w = serve(r, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/license", w.Header().Get("Location"))

	r = gin.New()
	r.Use(withUser(user), TrialGate(routes, fakeTrial(false), nil, "/license"))
	r.GET("/api/v1/clinics", ok)
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics", nil)).Code)
}

type fakeLicense struct {
	restrict bool
	features map[model.Feature]bool
	usage    model.UsageResult
	err      error
}

func (f fakeLicense) ShouldRestrictApplication(context.Context, *model.User) bool { return f.restrict }

func (f fakeLicense) FeatureAllowed(_ context.Context, _ *model.User, feature model.Feature) bool {
	return f.features[feature]
}

func (f fakeLicense) CheckUsageLimit(_ context.Context, kind model.UsageKind) (model.UsageResult, error) {
	f.usage.Kind = kind
	return f.usage, f.err
}

func TestLicenseMiddleware(t *testing.T) {
	routes := DefaultRouteTable()

	t.Run("restricted", func(t *testing.T) {
		m := NewLicenseMiddleware(fakeLicense{restrict: true}, routes, nil, "/license")
		r := gin.New()
		r.Use(m.Validate())
		r.GET("/api/v1/clinics", ok)
		r.GET("/api/v1/me", ok)

		w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "LICENSE_VALIDATION_FAILED", decode(t, w).ErrorCode)
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)).Code)
	})

	t.Run("feature", func(t *testing.T) {
		m := NewLicenseMiddleware(fakeLicense{features: map[model.Feature]bool{model.FeatureReports: true}}, routes, nil, "/license")
		r := gin.New()
		r.GET("/reports", m.RequireFeature("reports"), ok)
		r.GET("/billing", m.RequireFeature("billing"), ok)
		r.GET("/teleport", m.RequireFeature("teleport"), ok)

		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/reports", nil)).Code)
		for _, path := range []string{"/billing", "/teleport"} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set("Accept", "application/json")
			w := serve(r, req)
			assert.Equal(t, http.StatusForbidden, w.Code, path)
			assert.Equal(t, "FEATURE_NOT_AVAILABLE", decode(t, w).ErrorCode, path)
		}
	})

	t.Run("usage", func(t *testing.T) {
		full := NewLicenseMiddleware(fakeLicense{usage: model.NewUsageResult("", 10, 10)}, routes, nil, "")
		room := NewLicenseMiddleware(fakeLicense{usage: model.NewUsageResult("", 9, 10)}, routes, nil, "")
		broken := NewLicenseMiddleware(fakeLicense{err: errors.New("db down")}, routes, nil, "")

		r := gin.New()
		r.POST("/full", full.RequireUsage("patients"), ok)
		r.POST("/room", room.RequireUsage("patients"), ok)
		r.POST("/broken", broken.RequireUsage("patients"), ok)
		r.POST("/unknown", room.RequireUsage("beds"), ok)

		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodPost, "/room", nil)).Code)
		for _, path := range []string{"/full", "/broken", "/unknown"} {
			w := serve(r, httptest.NewRequest(http.MethodPost, path, nil))
			assert.Equal(t, http.StatusForbidden, w.Code, path)
			assert.Equal(t, "USAGE_LIMIT_EXCEEDED", decode(t, w).ErrorCode, path)
		}
	})
}

type fakeRBAC struct {
	superadmin bool
	grants     map[uuid.UUID]model.PermissionSet
}

func (f fakeRBAC) IsSuperAdmin(context.Context, *model.User) bool { return f.superadmin }

func (f fakeRBAC) HasAnyPermissionInClinic(_ context.Context, _ *model.User, perms []model.PermissionSlug, clinicID uuid.UUID) bool {
	if f.superadmin {
		return true
	}
	for _, p := range perms {
		if f.grants[clinicID].Has(p) {
			return true
		}
	}
	return false
}

func (f fakeRBAC) HasAllPermissionsInClinic(_ context.Context, _ *model.User, perms []model.PermissionSlug, clinicID uuid.UUID) bool {
	if f.superadmin {
		return true
	}
	for _, p := range perms {
		if !f.grants[clinicID].Has(p) {
			return false
		}
	}
	return true
}

func (f fakeRBAC) HasAnyRoleInClinic(_ context.Context, _ uuid.UUID, clinicID uuid.UUID) bool {
	_, ok := f.grants[clinicID]
	return ok
}

func TestRequirePermission(t *testing.T) {
	user := &model.User{Base: model.Base{ID: uuid.New()}}
	clinicA, clinicB := uuid.New(), uuid.New()
	rbac := fakeRBAC{grants: map[uuid.UUID]model.PermissionSet{
		clinicA: model.NewPermissionSet(model.PermPatientRead),
		clinicB: model.NewPermissionSet(),
	}}
	m := NewPermissionMiddleware(rbac, nil)

	r := gin.New()
	r.Use(withUser(user))
	r.GET("/api/v1/clinics/:clinic_id/patients", m.RequirePermission(model.PermPatientRead), ok)
	r.POST("/api/v1/patients", m.RequirePermission(model.PermPatientRead), func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{"clinic_id": requestctx.ClinicID(c), "body": string(body)})
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/"+clinicA.String()+"/patients", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/"+clinicB.String()+"/patients", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", decode(t, w).ErrorCode)

	// the route parameter wins over the header
	req := httptest.NewRequest(http.MethodGet, "/api/v1/clinics/"+clinicB.String()+"/patients", nil)
	req.Header.Set(ClinicHeader, clinicA.String())
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	// the body wins over the header and is still readable by the handler
	payload := `{"clinic_id":"` + clinicA.String() + `","first_name":"Ada"}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ClinicHeader, clinicB.String())
	w = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		ClinicID uuid.UUID `json:"clinic_id"`
		Body     string    `json:"body"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, clinicA, got.ClinicID)
	assert.Equal(t, payload, got.Body)

	// the session cookie is the last resort
	req = httptest.NewRequest(http.MethodPost, "/api/v1/patients", nil)
	req.AddCookie(&http.Cookie{Name: ClinicCookie, Value: clinicA.String()})
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	// no clinic at all
	w = serve(r, httptest.NewRequest(http.MethodPost, "/api/v1/patients", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", decode(t, w).ErrorCode)
}

func TestRequirePermission_Unauthenticated(t *testing.T) {
	m := NewPermissionMiddleware(fakeRBAC{}, nil)
	r := gin.New()
	r.GET("/api/v1/clinics/:clinic_id/patients", m.RequirePermission(model.PermPatientRead), ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/"+uuid.NewString()+"/patients", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode(t, w).ErrorCode)
}

func TestRequireAllPermissions(t *testing.T) {
	user := &model.User{Base: model.Base{ID: uuid.New()}}
	full, partial := uuid.New(), uuid.New()
	m := NewPermissionMiddleware(fakeRBAC{grants: map[uuid.UUID]model.PermissionSet{
		full:    model.NewPermissionSet(model.PermReportRead, model.PermPatientRead),
		partial: model.NewPermissionSet(model.PermReportRead),
	}}, nil)

	r := gin.New()
	r.Use(withUser(user))
	r.GET("/api/v1/clinics/:clinic_id/reports", m.RequireAllPermissions(model.PermReportRead, model.PermPatientRead), ok)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/"+full.String()+"/reports", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/"+partial.String()+"/reports", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", decode(t, w).ErrorCode)

	assert.Panics(t, func() { m.RequireAllPermissions() })
}

func TestRequireSuperAdmin(t *testing.T) {
	user := &model.User{Base: model.Base{ID: uuid.New()}}
	clinicID := uuid.New()
	admin := NewPermissionMiddleware(fakeRBAC{grants: map[uuid.UUID]model.PermissionSet{
		clinicID: model.NewPermissionSet(model.PermRoleManage),
	}}, nil)
	root := NewPermissionMiddleware(fakeRBAC{superadmin: true}, nil)

	r := gin.New()
	r.Use(withUser(user))
	r.PUT("/admin/roles", admin.RequireSuperAdmin(), ok)
	r.PUT("/root/roles", root.RequireSuperAdmin(), ok)

	// role.manage in the selected clinic is not enough
	req := httptest.NewRequest(http.MethodPut, "/admin/roles", nil)
	req.Header.Set(ClinicHeader, clinicID.String())
	w := serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", decode(t, w).ErrorCode)

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodPut, "/root/roles", nil)).Code)

	anon := gin.New()
	anon.PUT("/roles", root.RequireSuperAdmin(), ok)
	w = serve(anon, httptest.NewRequest(http.MethodPut, "/roles", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermission_UnknownSlugPanics(t *testing.T) {
	m := NewPermissionMiddleware(fakeRBAC{}, nil)
	assert.Panics(t, func() { m.RequirePermission("patient.teleport") })
	assert.Panics(t, func() { m.RequirePermission() })
}

func TestClinicAccess(t *testing.T) {
	user := &model.User{Base: model.Base{ID: uuid.New()}}
	member, stranger := uuid.New(), uuid.New()

	r := gin.New()
	r.Use(withUser(user))
	r.GET("/api/v1/clinics/:clinic_id", NewPermissionMiddleware(fakeRBAC{grants: map[uuid.UUID]model.PermissionSet{member: {}}}, nil).ClinicAccess(), ok)
	r.GET("/api/v1/current", NewPermissionMiddleware(fakeRBAC{}, nil).ClinicAccess(), ok)

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/"+member.String(), nil)).Code)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/"+stranger.String(), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "CLINIC_ACCESS_DENIED", decode(t, w).ErrorCode)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/not-a-uuid", nil))
	assert.Equal(t, "NO_CLINIC_ACCESS", decode(t, w).ErrorCode)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/current", nil))
	assert.Equal(t, "NO_CLINIC_ACCESS", decode(t, w).ErrorCode)

	sa := gin.New()
	sa.Use(withUser(user))
	sa.GET("/api/v1/clinics/:clinic_id", NewPermissionMiddleware(fakeRBAC{superadmin: true}, nil).ClinicAccess(), ok)
	assert.Equal(t, http.StatusOK, serve(sa, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/"+stranger.String(), nil)).Code)
}

func TestRouteTable(t *testing.T) {
	routes := DefaultRouteTable()

	assert.True(t, routes.Is("/api/v1/auth/login", RoutePublic))
	assert.True(t, routes.Is("/api/v1/auth/login", RouteTrialExempt))
	assert.True(t, routes.Is("/api/v1/health/live", RouteLicenseExempt))
	assert.True(t, routes.Is("/api/v1/license/activate", RouteTrialExempt))
	assert.True(t, routes.Is("/api/v1/license", RouteLicenseExempt))
	assert.False(t, routes.Is("/api/v1/license", RoutePublic))
	assert.False(t, routes.Is("/api/v1/licenses-report", RouteLicenseExempt))
	assert.False(t, routes.Is("/api/v1/clinics", RouteTrialExempt))

	custom := NewRouteTable(RouteRule{Pattern: "/docs/?.html", Classes: []RouteClass{RouteTrialExempt}})
	assert.True(t, custom.Is("/docs/a.html", RouteTrialExempt))
	assert.False(t, custom.Is("/docs/ab.html", RouteTrialExempt))
	assert.False(t, custom.Is("/docs/a.html", RouteLicenseExempt))
	assert.Equal(t, 2, custom.seen.Len(), "classifications are memoized per path")

	var none *RouteTable
	assert.False(t, none.Is("/register", RoutePublic))
}

func TestRateLimit(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute, time.Minute)
	defer store.Close()

	r := gin.New()
	r.Use(RateLimit(store, RateLimitConfig{Requests: 2, Window: time.Minute}, nil))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i, remaining := range []string{"1", "0"} {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, remaining, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decode(t, w).ErrorCode)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.1.1.1:5555"
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestGlobalRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(RateLimiterConfig{Rate: 0.0001, Burst: 1}, nil).RateLimit())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decode(t, w).ErrorCode)
}

func TestRecoveryAndRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })
	r.GET("/id", func(c *gin.Context) {
		rc, found := requestctx.FromContext(c.Request.Context())
		require.True(t, found)
		c.String(http.StatusOK, rc.RequestID)
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode(t, w).ErrorCode)
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w = serve(r, req)
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}

	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("listed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := serve(r, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := serve(r, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), ClinicHeader)
		assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("unlisted origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "https://evil.example.net")
		w := serve(r, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

		req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
		req.Header.Set("Origin", "https://evil.example.net")
		assert.Equal(t, http.StatusForbidden, serve(r, req).Code)
	})

	t.Run("wildcard without credentials", func(t *testing.T) {
		open := DefaultCORSConfig()
		open.AllowCredentials = false
		r := gin.New()
		r.Use(CORS(open))
		r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "https://anywhere.example.org")
		w := serve(r, req)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})
}
