package license

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	"github.com/jwalitptl/clinic-api/internal/service/license"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	svc           *license.Service
	dashboardPath string
}

func NewHandler(svc *license.Service, dashboardPath string) *Handler {
	return &Handler{svc: svc, dashboardPath: dashboardPath}
}

// RegisterRoutes mounts the license endpoints. Reading and activating stay
// reachable for restricted users, status changes need license.manage.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Gates) {
	lic := r.Group("/license")
	{
		lic.GET("", h.Status)
		lic.POST("/activate", h.Activate)

		manage := lic.Group("", g.Permission.RequirePermission(model.PermLicenseManage))
		manage.POST("/suspend", h.Suspend)
		manage.POST("/revoke", h.Revoke)
		manage.POST("/reactivate", h.Reactivate)
	}
}

// RegisterPageRoutes mounts the license page the gates redirect browsers to
func (h *Handler) RegisterPageRoutes(r gin.IRoutes) {
	r.GET("/license", h.Page)
}

func (h *Handler) Page(c *gin.Context) {
	overview, err := h.svc.Overview(c.Request.Context(), requestctx.User(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.RenderPage(c, "License", map[string]interface{}{"overview": overview})
}

// Status returns the license, the trial of the caller and current usage
func (h *Handler) Status(c *gin.Context) {
	overview, err := h.svc.Overview(c.Request.Context(), requestctx.User(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, overview)
}

func (h *Handler) Activate(c *gin.Context) {
	var req model.ActivateLicenseRequest
	if !handler.Bind(c, &req) {
		return
	}

	l, err := h.svc.Activate(c.Request.Context(), requestctx.User(c), req.LicenseKey)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	if !httputil.WantsJSON(c) && h.dashboardPath != "" {
		c.Redirect(http.StatusFound, h.dashboardPath)
		return
	}
	httputil.RespondWithSuccess(c, l)
}

func (h *Handler) Suspend(c *gin.Context) {
	h.transition(c, h.svc.Suspend)
}

func (h *Handler) Revoke(c *gin.Context) {
	h.transition(c, h.svc.Revoke)
}

func (h *Handler) Reactivate(c *gin.Context) {
	h.transition(c, h.svc.Reactivate)
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context) (*model.License, error)) {
	l, err := fn(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, l)
}
