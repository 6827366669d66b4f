package setting

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	"github.com/jwalitptl/clinic-api/internal/service/setting"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	svc *setting.Service
}

func NewHandler(svc *setting.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the clinic settings. Public settings only need
// membership in the clinic, which the clinic group already checks.
func (h *Handler) RegisterRoutes(clinic *gin.RouterGroup, g handler.Gates) {
	read := g.Permission.RequirePermission(model.PermSettingsRead)
	update := g.Permission.RequirePermission(model.PermSettingsUpdate)

	settings := clinic.Group("/settings")
	{
		settings.GET("", read, h.ListSettings)
		settings.GET("/public", h.PublicSettings)
		settings.GET("/:key", read, h.GetSetting)
		settings.PUT("/:key", update, h.SetSetting)
		settings.DELETE("/:key", update, h.DeleteSetting)
	}
}

// ListSettings returns every setting, or the typed values of one group
// when ?group= is given
func (h *Handler) ListSettings(c *gin.Context) {
	clinicID := requestctx.ClinicID(c)
	if group := c.Query("group"); group != "" {
		values, err := h.svc.GetGroup(c.Request.Context(), clinicID, group)
		if err != nil {
			handler.Fail(c, err)
			return
		}
		httputil.RespondWithSuccess(c, values)
		return
	}

	settings, err := h.svc.List(c.Request.Context(), clinicID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, settings)
}

func (h *Handler) PublicSettings(c *gin.Context) {
	values, err := h.svc.GetPublic(c.Request.Context(), requestctx.ClinicID(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, values)
}

func (h *Handler) GetSetting(c *gin.Context) {
	s, err := h.svc.Get(c.Request.Context(), requestctx.ClinicID(c), c.Param("key"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, s)
}

func (h *Handler) SetSetting(c *gin.Context) {
	var req model.SetSettingRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	s, err := h.svc.Set(c.Request.Context(), requestctx.ClinicID(c), c.Param("key"), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, s)
}

func (h *Handler) DeleteSetting(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), requestctx.ClinicID(c), c.Param("key")); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"deleted": c.Param("key")})
}
