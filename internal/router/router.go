package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jwalitptl/clinic-api/internal/handler"
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
	"github.com/jwalitptl/clinic-api/pkg/cache"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// Handlers are the HTTP handlers mounted by the router
type Handlers struct {
	Auth    *authhandler.Handler
	License *licensehandler.Handler
	Clinic  *clinichandler.Handler
	Setting *settinghandler.Handler
	Patient *patienthandler.Handler
	Report  *reporthandler.Handler
	RBAC    *rbachandler.Handler
	Audit   *audithandler.Handler
	Health  *healthhandler.Handler

	Maintenance *maintenancehandler.Handler
}

// Checks are the services the gate chain consults
type Checks struct {
	Auth        middleware.Authenticator
	Trial       middleware.TrialChecker
	License     middleware.LicenseChecker
	Permissions middleware.PermissionChecker
}

type RouterConfig struct {
	Mode             string
	Routes           *middleware.RouteTable
	CORS             middleware.CORSConfig
	Security         middleware.SecurityConfig
	RateLimitEnabled bool
	RateLimit        middleware.RateLimitConfig
	GlobalRateLimit  middleware.RateLimiterConfig
	BodyLimit        int64
	LoginPath        string
	LicensePath      string
	MetricsPrefix    string
	// Registerer receives the request metrics, nil uses the default registry
	Registerer prometheus.Registerer
}

type Router struct {
	engine   *gin.Engine
	handlers Handlers
	checks   Checks
	store    cache.Store
	metrics  *metrics.Metrics
	http     *routerMetrics
	config   RouterConfig
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

func NewRouter(handlers Handlers, checks Checks, store cache.Store, m *metrics.Metrics, config RouterConfig) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.Routes == nil {
		config.Routes = middleware.DefaultRouteTable()
	}
	if config.MetricsPrefix == "" {
		config.MetricsPrefix = "clinic_http"
	}
	if config.BodyLimit <= 0 {
		config.BodyLimit = 1 << 20
	}

	engine := gin.New()
	r := &Router{
		engine:   engine,
		handlers: handlers,
		checks:   checks,
		store:    store,
		metrics:  m,
		http:     initRouterMetrics(config.MetricsPrefix, config.Registerer),
		config:   config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORS),
		middleware.BodyLimit(config.BodyLimit),
		middleware.NewRateLimiter(config.GlobalRateLimit, m).RateLimit(),
	)
	return r
}

// Setup mounts every route. The gate chain runs authentication, then the
// trial gate, then the license gate; clinic and permission gates are
// attached per route.
func (r *Router) Setup() {
	gates := handler.Gates{
		Permission: middleware.NewPermissionMiddleware(r.checks.Permissions, r.metrics),
		License:    middleware.NewLicenseMiddleware(r.checks.License, r.config.Routes, r.metrics, r.config.LicensePath),
	}
	authMW := middleware.NewAuthMiddleware(r.checks.Auth, r.metrics, r.config.LoginPath)

	web := r.engine.Group("", r.rateLimit()...)
	r.handlers.Auth.RegisterWebRoutes(web)

	// browser pages run the same gates as the API and redirect on denial
	pages := web.Group("", authMW.Authenticate())
	pages.Use(
		middleware.TrialGate(r.config.Routes, r.checks.Trial, r.metrics, r.config.LicensePath),
		gates.License.Validate(),
	)
	r.handlers.Auth.RegisterPageRoutes(pages)
	r.handlers.License.RegisterPageRoutes(pages)

	api := r.engine.Group("/api/v1")
	r.handlers.Health.RegisterRoutes(api)

	public := api.Group("", r.rateLimit()...)
	r.handlers.Auth.RegisterRoutes(public)

	protected := api.Group("", authMW.Authenticate())
	protected.Use(r.rateLimit()...)
	protected.Use(
		middleware.TrialGate(r.config.Routes, r.checks.Trial, r.metrics, r.config.LicensePath),
		gates.License.Validate(),
	)

	r.handlers.Auth.RegisterAccountRoutes(protected)
	r.handlers.License.RegisterRoutes(protected, gates)
	r.handlers.Clinic.RegisterRoutes(protected, gates)
	r.handlers.RBAC.RegisterRoutes(protected, gates)
	r.handlers.Maintenance.RegisterRoutes(protected, gates)

	clinic := protected.Group("/clinics/:clinic_id", gates.Permission.ClinicAccess())
	r.handlers.Clinic.RegisterClinicRoutes(clinic, gates)
	r.handlers.Setting.RegisterRoutes(clinic, gates)
	r.handlers.Patient.RegisterRoutes(clinic, gates)
	r.handlers.Report.RegisterRoutes(clinic, gates)
	r.handlers.RBAC.RegisterClinicRoutes(clinic, gates)
	r.handlers.Audit.RegisterClinicRoutes(clinic, gates)
	r.handlers.Maintenance.RegisterClinicRoutes(clinic, gates)
}

func (r *Router) rateLimit() []gin.HandlerFunc {
	if !r.config.RateLimitEnabled || r.store == nil {
		return nil
	}
	return []gin.HandlerFunc{middleware.RateLimit(r.store, r.config.RateLimit, r.metrics)}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string, reg prometheus.Registerer) *routerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &routerMetrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "class"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)

		r.http.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.http.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		switch {
		case code >= 500:
			r.http.errorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		case code >= 400:
			r.http.errorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}
