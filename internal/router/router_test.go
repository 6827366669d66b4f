package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/app"
	"github.com/jwalitptl/clinic-api/internal/config"
	audithandler "github.com/jwalitptl/clinic-api/internal/handler/audit"
	authhandler "github.com/jwalitptl/clinic-api/internal/handler/auth"
	clinichandler "github.com/jwalitptl/clinic-api/internal/handler/clinic"
	healthhandler "github.com/jwalitptl/clinic-api/internal/handler/health"
	licensehandler "github.com/jwalitptl/clinic-api/internal/handler/license"
	maintenancehandler "github.com/jwalitptl/clinic-api/internal/handler/maintenance"
	patienthandler "github.com/jwalitptl/clinic-api/internal/handler/patient"
	rbachandler "github.com/jwalitptl/clinic-api/internal/handler/rbac"
	reporthandler "github.com/jwalitptl/clinic-api/internal/handler/report"
	settinghandler "github.com/jwalitptl/clinic-api/internal/handler/setting"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/repotest"
	"github.com/jwalitptl/clinic-api/pkg/cache"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type testEnv struct {
	db     *repotest.DB
	roles  map[model.RoleName]*model.Role
	engine *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := repotest.NewDB()
	roles := db.SeedCatalog()
	repos := db.Repos()

	store := cache.NewMemoryStore(time.Minute, time.Minute)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", reg)

	cfg := &config.Config{
		JWT:   config.JWTConfig{Secret: "router-test-secret", Issuer: "clinic-api"},
		Trial: config.TrialConfig{DurationDays: 14},
		License: config.LicenseConfig{TrialLimits: model.UsageLimits{
			Users: 5, Clinics: 1, Patients: 100, Appointments: 500,
		}},
		Web: config.WebConfig{
			OnboardingPath: "/onboarding",
			LicensePath:    "/license",
			LoginPath:      "/login",
			DashboardPath:  "/dashboard",
		},
	}
	svc := app.NewServices(cfg, &repos, store, m)

	r := NewRouter(Handlers{
		Auth:    authhandler.NewHandler(svc.Auth, authhandler.Config{DashboardPath: cfg.Web.DashboardPath}),
		License: licensehandler.NewHandler(svc.License, cfg.Web.DashboardPath),
		Clinic:  clinichandler.NewHandler(svc.Clinic),
		Setting: settinghandler.NewHandler(svc.Setting),
		Patient: patienthandler.NewHandler(svc.Patient, svc.RBAC),
		Report:  reporthandler.NewHandler(svc.License, svc.Patient, svc.Setting),
		RBAC:    rbachandler.NewHandler(svc.RBAC),
		Audit:   audithandler.NewHandler(svc.Audit),
		Health:  healthhandler.NewHandler(map[string]healthhandler.Check{}, reg),

		Maintenance: maintenancehandler.NewHandler(svc.Cache, svc.Audit),
	}, Checks{
		Auth:        svc.Auth,
		Trial:       svc.Trial,
		License:     svc.License,
		Permissions: svc.RBAC,
	}, store, m, RouterConfig{
		Mode:             gin.TestMode,
		RateLimitEnabled: true,
		RateLimit:        middleware.RateLimitConfig{Requests: 1000, Window: time.Minute},
		LoginPath:        cfg.Web.LoginPath,
		LicensePath:      cfg.Web.LicensePath,
		Registerer:       reg,
	})
	r.Setup()

	return &testEnv{db: db, roles: roles, engine: r.Engine()}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.doInClinic(t, method, path, token, uuid.Nil, body)
}

// doInClinic sends the request with X-Clinic-ID set when clinicID is not nil
func (e *testEnv) doInClinic(t *testing.T, method, path, token string, clinicID uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if clinicID != uuid.Nil {
		req.Header.Set(middleware.ClinicHeader, clinicID.String())
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

type registration struct {
	UserID   uuid.UUID
	ClinicID uuid.UUID
	Token    string
}

func (e *testEnv) register(t *testing.T, email string) registration {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name":                  "Sam Okafor",
		"email":                 email,
		"password":              "correct-horse",
		"password_confirmation": "correct-horse",
		"clinic_name":           "Riverside " + email,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			User     model.User          `json:"user"`
			Clinic   model.Clinic        `json:"clinic"`
			Tokens   model.TokenResponse `json:"tokens"`
			Redirect string              `json:"redirect"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Data.Tokens.AccessToken)
	assert.Equal(t, "/onboarding", resp.Data.Redirect)

	return registration{UserID: resp.Data.User.ID, ClinicID: resp.Data.Clinic.ID, Token: resp.Data.Tokens.AccessToken}
}

// superadmin registers a user and sets the global superadmin flag
func (e *testEnv) superadmin(t *testing.T, email string) registration {
	t.Helper()
	reg := e.register(t, email)
	u := e.db.Users[reg.UserID]
	require.NotNil(t, u)
	u.IsSuperAdmin = true
	return reg
}

func (e *testEnv) assignmentOf(userID, clinicID uuid.UUID) (model.UserClinicRole, bool) {
	for _, a := range e.db.Assignments {
		if a.UserID == userID && a.ClinicID == clinicID {
			return a, true
		}
	}
	return model.UserClinicRole{}, false
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Success   bool   `json:"success"`
		ErrorCode string `json:"error_code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	return env.ErrorCode
}

func TestRouter_WebRegistration(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{
		"name":                  {"Ada Brooks"},
		"email":                 {"ada@example.com"},
		"password":              {"correct-horse"},
		"password_confirmation": {"correct-horse"},
	}
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/onboarding", w.Header().Get("Location"))

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.AccessTokenCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	me := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	me.AddCookie(session)
	w = httptest.NewRecorder()
	env.engine.ServeHTTP(w, me)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRouter_RegistrationValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name":                  "Ada Brooks",
		"email":                 "ada@example.com",
		"password":              "correct-horse",
		"password_confirmation": "battery-staple",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, w))
	assert.Empty(t, env.db.Users)
}

func TestRouter_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_HealthIsPublic(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ClinicScopedRoutes(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner@example.com")

	w := env.do(t, http.MethodPut, "/api/v1/clinics/"+owner.ClinicID.String()+"/settings/clinic_timezone", owner.Token, gin.H{
		"value": "Europe/Lisbon",
		"group": "general",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/clinics/"+owner.ClinicID.String()+"/settings/clinic_timezone", owner.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Europe/Lisbon")

	w = env.do(t, http.MethodGet, "/api/v1/clinics/"+uuid.NewString()+"/settings", owner.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "CLINIC_ACCESS_DENIED", errorCode(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/clinics/not-a-uuid/settings", owner.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NO_CLINIC_ACCESS", errorCode(t, w))
}

func TestRouter_ExpiredTrial(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "late@example.com")

	started := time.Now().Add(-20 * 24 * time.Hour)
	ended := time.Now().Add(-6 * 24 * time.Hour)
	u := env.db.Users[owner.UserID]
	require.NotNil(t, u)
	u.TrialStartedAt = &started
	u.TrialEndsAt = &ended

	w := env.do(t, http.MethodGet, "/api/v1/clinics", owner.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "TRIAL_EXPIRED", errorCode(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/license", owner.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/me", owner.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SuperadminGrantGuard(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner@example.com")
	colleague := env.register(t, "colleague@example.com")

	path := "/api/v1/clinics/" + owner.ClinicID.String() + "/users/" + colleague.UserID.String() + "/role"

	w := env.do(t, http.MethodPut, path, owner.Token, gin.H{"role_id": env.roles[model.RoleSuperAdmin].ID.String()})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", errorCode(t, w))

	w = env.do(t, http.MethodPut, path, owner.Token, gin.H{"role_id": env.roles[model.RoleDoctor].ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var found bool
	for _, a := range env.db.Assignments {
		if a.UserID == colleague.UserID && a.ClinicID == owner.ClinicID {
			found = true
			assert.Equal(t, env.roles[model.RoleDoctor].ID, a.RoleID)
		}
	}
	assert.True(t, found)

	// the colleague now reaches the clinic but lacks role.manage there
	w = env.do(t, http.MethodPut, path, colleague.Token, gin.H{"role_id": env.roles[model.RoleAdmin].ID.String()})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", errorCode(t, w))
}

func TestRouter_SuperadminDemotionGuard(t *testing.T) {
	env := newTestEnv(t)
	root := env.superadmin(t, "root@example.com")
	owner := env.register(t, "owner@example.com")
	colleague := env.register(t, "colleague@example.com")

	path := "/api/v1/clinics/" + owner.ClinicID.String() + "/users/" + colleague.UserID.String() + "/role"

	w := env.do(t, http.MethodPut, path, root.Token, gin.H{"role_id": env.roles[model.RoleSuperAdmin].ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, path, owner.Token, gin.H{"role_id": env.roles[model.RolePatient].ID.String()})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", errorCode(t, w))

	w = env.do(t, http.MethodDelete, path, owner.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", errorCode(t, w))

	a, found := env.assignmentOf(colleague.UserID, owner.ClinicID)
	require.True(t, found)
	assert.Equal(t, model.RoleSuperAdmin, a.RoleName)

	w = env.do(t, http.MethodPut, path, root.Token, gin.H{"role_id": env.roles[model.RoleDoctor].ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// once demoted the clinic admin manages the colleague again
	w = env.do(t, http.MethodDelete, path, owner.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, found = env.assignmentOf(colleague.UserID, owner.ClinicID)
	assert.False(t, found)
}

func TestRouter_RoleCatalogNeedsSuperadmin(t *testing.T) {
	env := newTestEnv(t)
	root := env.superadmin(t, "root@example.com")
	tenantA := env.register(t, "a@example.com")
	tenantB := env.register(t, "b@example.com")
	staff := env.register(t, "staff@example.com")

	w := env.doInClinic(t, http.MethodPost, "/api/v1/rbac/roles", tenantA.Token, tenantA.ClinicID, gin.H{
		"name": "nurse", "display_name": "Nurse", "permissions": []string{"patient.read"},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", errorCode(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/rbac/roles", root.Token, gin.H{
		"name": "nurse", "display_name": "Nurse", "permissions": []string{"patient.read"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	nurse := created.Data.ID
	require.NotEqual(t, uuid.Nil, nurse)

	// clinic admins still hand the shared role out inside their own clinic
	w = env.do(t, http.MethodPut,
		"/api/v1/clinics/"+tenantA.ClinicID.String()+"/users/"+staff.UserID.String()+"/role",
		tenantA.Token, gin.H{"role_id": nurse.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rolePath := "/api/v1/rbac/roles/" + nurse.String()
	mutations := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodPut, rolePath + "/permissions", gin.H{"permissions": []string{"patient.read", "patient.delete", "role.manage"}}},
		{http.MethodPut, rolePath, gin.H{"display_name": "Head Nurse"}},
		{http.MethodDelete, rolePath, nil},
	}
	for _, tenant := range []registration{tenantA, tenantB} {
		for _, m := range mutations {
			w = env.doInClinic(t, m.method, m.path, tenant.Token, tenant.ClinicID, m.body)
			assert.Equal(t, http.StatusForbidden, w.Code, m.method+" "+m.path)
			assert.Equal(t, "INSUFFICIENT_PERMISSIONS", errorCode(t, w))
		}
	}
	assert.Equal(t, []model.PermissionSlug{model.PermPatientRead}, env.db.RolePerms[nurse])
	assert.Equal(t, "Nurse", env.db.Roles[nurse].DisplayName)

	// reading the catalog stays open to role.read holders
	w = env.doInClinic(t, http.MethodGet, rolePath, tenantB.Token, tenantB.ClinicID, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, rolePath+"/permissions", root.Token, gin.H{"permissions": []string{"patient.read", "appointment.read"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []model.PermissionSlug{model.PermPatientRead, model.PermAppointmentRead}, env.db.RolePerms[nurse])
}

// browse issues a browser request carrying the session cookie when set
func (e *testEnv) browse(t *testing.T, path string, session *http.Cookie, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Accept", "text/html")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if session != nil {
		req.AddCookie(session)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, token string) *http.Cookie {
	t.Helper()
	require.NotEmpty(t, token)
	return &http.Cookie{Name: middleware.AccessTokenCookie, Value: token}
}

func TestRouter_WebPagesRunGateChain(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "pages@example.com")
	session := sessionCookie(t, owner.Token)

	w := env.browse(t, "/dashboard", nil, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "flash_error")

	w = env.browse(t, "/login", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Login")

	w = env.browse(t, "/dashboard", session, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Dashboard")

	// client side visits get the page object
	w = env.browse(t, "/onboarding", session, http.Header{"X-Inertia": {"true"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "true", w.Header().Get("X-Inertia"))
	var page struct {
		Component string                 `json:"component"`
		Props     map[string]interface{} `json:"props"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, "Onboarding", page.Component)
	assert.Contains(t, page.Props, "profile")

	started := time.Now().Add(-20 * 24 * time.Hour)
	ended := time.Now().Add(-6 * 24 * time.Hour)
	u := env.db.Users[owner.UserID]
	u.TrialStartedAt = &started
	u.TrialEndsAt = &ended

	w = env.browse(t, "/dashboard", session, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/license", w.Header().Get("Location"))

	w = env.browse(t, "/license", session, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "License")
}

func TestRouter_PatientDataAccess(t *testing.T) {
	env := newTestEnv(t)
	root := env.superadmin(t, "root@example.com")
	owner := env.register(t, "owner@example.com")
	desk := env.register(t, "desk@example.com")
	rep := env.register(t, "rep@example.com")
	reader := env.register(t, "reader@example.com")

	clinicPath := "/api/v1/clinics/" + owner.ClinicID.String()
	assign := func(user registration, roleID uuid.UUID) {
		t.Helper()
		w := env.do(t, http.MethodPut, clinicPath+"/users/"+user.UserID.String()+"/role", owner.Token, gin.H{"role_id": roleID.String()})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	assign(desk, env.roles[model.RoleReceptionist].ID)
	assign(rep, env.roles[model.RoleMedRep].ID)

	w := env.do(t, http.MethodPost, "/api/v1/rbac/roles", root.Token, gin.H{
		"name": "chart_reader", "display_name": "Chart Reader", "permissions": []string{"patient.read"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assign(reader, created.Data.ID)

	w = env.do(t, http.MethodPost, clinicPath+"/patients", owner.Token, gin.H{
		"first_name": "Ada", "last_name": "Lovelace", "notes": "penicillin allergy",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	type listed struct {
		Data struct {
			Patients []struct {
				FirstName string  `json:"first_name"`
				Notes     *string `json:"notes"`
			} `json:"patients"`
		} `json:"data"`
	}
	list := func(token string) listed {
		t.Helper()
		w := env.do(t, http.MethodGet, clinicPath+"/patients", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out listed
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		require.Len(t, out.Data.Patients, 1)
		return out
	}

	got := list(owner.Token)
	require.NotNil(t, got.Data.Patients[0].Notes)
	assert.Equal(t, "penicillin allergy", *got.Data.Patients[0].Notes)

	got = list(desk.Token)
	assert.Equal(t, "Ada", got.Data.Patients[0].FirstName)
	assert.Nil(t, got.Data.Patients[0].Notes)

	for _, denied := range []registration{rep, reader} {
		w = env.do(t, http.MethodGet, clinicPath+"/patients", denied.Token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "INSUFFICIENT_PERMISSIONS", errorCode(t, w))
	}
}

func TestRouter_StartTrial(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "provisioned@example.com")

	u := env.db.Users[user.UserID]
	u.TrialStartedAt, u.TrialEndsAt = nil, nil

	w := env.do(t, http.MethodGet, "/api/v1/clinics", user.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "LICENSE_VALIDATION_FAILED", errorCode(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/trial/start", user.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var status struct {
		Data model.TrialStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Data.OnTrial)
	assert.GreaterOrEqual(t, status.Data.DaysRemaining, 13)

	w = env.do(t, http.MethodGet, "/api/v1/clinics", user.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ends := *env.db.Users[user.UserID].TrialEndsAt
	w = env.do(t, http.MethodPost, "/api/v1/trial/start", user.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ends, *env.db.Users[user.UserID].TrialEndsAt)
}

func TestRouter_CacheMaintenance(t *testing.T) {
	env := newTestEnv(t)
	root := env.superadmin(t, "root@example.com")
	owner := env.register(t, "owner@example.com")

	settingPath := "/api/v1/clinics/" + owner.ClinicID.String() + "/settings/clinic_timezone"
	w := env.do(t, http.MethodPut, settingPath, owner.Token, gin.H{"value": "Europe/Lisbon"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(t, http.MethodGet, settingPath, owner.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// an out of band edit stays hidden behind the cached row
	env.db.Settings[owner.ClinicID.String()+"/clinic_timezone"].Value = "Asia/Tokyo"
	w = env.do(t, http.MethodGet, settingPath, owner.Token, nil)
	assert.Contains(t, w.Body.String(), "Europe/Lisbon")

	w = env.do(t, http.MethodPost, "/api/v1/clinics/"+owner.ClinicID.String()+"/cache/clear", owner.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(t, http.MethodGet, settingPath, owner.Token, nil)
	assert.Contains(t, w.Body.String(), "Asia/Tokyo")

	w = env.do(t, http.MethodPost, "/api/v1/admin/cache/clear", owner.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", errorCode(t, w))

	env.db.Settings[owner.ClinicID.String()+"/clinic_timezone"].Value = "America/Lima"
	w = env.do(t, http.MethodPost, "/api/v1/admin/cache/clear", root.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.do(t, http.MethodGet, settingPath, owner.Token, nil)
	assert.Contains(t, w.Body.String(), "America/Lima")
}
