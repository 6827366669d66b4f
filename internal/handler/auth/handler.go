package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	"github.com/jwalitptl/clinic-api/internal/service/auth"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Config struct {
	DashboardPath string
	SecureCookies bool
}

type Handler struct {
	svc *auth.Service
	cfg Config
}

func NewHandler(svc *auth.Service, cfg Config) *Handler {
	if cfg.DashboardPath == "" {
		cfg.DashboardPath = "/dashboard"
	}
	return &Handler{svc: svc, cfg: cfg}
}

// RegisterWebRoutes mounts the browser forms and their pages
func (h *Handler) RegisterWebRoutes(r gin.IRoutes) {
	r.GET("/register", h.page("Register"))
	r.POST("/register", h.Register)
	r.GET("/login", h.page("Login"))
	r.POST("/login", h.Login)
}

// RegisterPageRoutes mounts the signed in pages. r must carry the gate chain.
func (h *Handler) RegisterPageRoutes(r gin.IRoutes) {
	r.GET("/dashboard", h.profilePage("Dashboard"))
	r.GET("/onboarding", h.profilePage("Onboarding"))
}

func (h *Handler) page(component string) gin.HandlerFunc {
	return func(c *gin.Context) {
		handler.RenderPage(c, component, nil)
	}
}

func (h *Handler) profilePage(component string) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := h.svc.Me(c.Request.Context(), requestctx.User(c))
		if err != nil {
			handler.Fail(c, err)
			return
		}
		handler.RenderPage(c, component, map[string]interface{}{"profile": profile})
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshToken)
	}
}

// RegisterAccountRoutes mounts the endpoints of the signed in user
func (h *Handler) RegisterAccountRoutes(r *gin.RouterGroup) {
	r.GET("/me", h.Me)
	r.POST("/onboarding/complete", h.CompleteOnboarding)
	r.POST("/trial/start", h.StartTrial)
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.Bind(c, &req) {
		return
	}

	reg, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	if httputil.WantsJSON(c) {
		httputil.RespondWithCreated(c, reg)
		return
	}
	h.setSession(c, reg.Tokens)
	c.Redirect(http.StatusFound, reg.Redirect)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.Bind(c, &req) {
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), &req)
	if err != nil {
		log.Info().Err(err).Str("client_ip", c.ClientIP()).Msg("login rejected")
		handler.Fail(c, err)
		return
	}

	if httputil.WantsJSON(c) {
		httputil.RespondWithSuccess(c, tokens)
		return
	}
	h.setSession(c, tokens)
	c.Redirect(http.StatusFound, h.cfg.DashboardPath)
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req model.RefreshTokenRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Me(c *gin.Context) {
	profile, err := h.svc.Me(c.Request.Context(), requestctx.User(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, profile)
}

func (h *Handler) CompleteOnboarding(c *gin.Context) {
	user := requestctx.User(c)
	if err := h.svc.CompleteOnboarding(c.Request.Context(), user); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"onboarding_completed": true})
}

func (h *Handler) StartTrial(c *gin.Context) {
	status, err := h.svc.StartTrial(c.Request.Context(), requestctx.User(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, status)
}

func (h *Handler) setSession(c *gin.Context, tokens *model.TokenResponse) {
	if tokens == nil {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, tokens.AccessToken, int(tokens.ExpiresIn), "/", "", h.cfg.SecureCookies, true)
}
