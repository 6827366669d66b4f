// Package maintenance exposes the cache invalidation hooks over HTTP
package maintenance

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	"github.com/jwalitptl/clinic-api/internal/service/appcache"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	cache   *appcache.Service
	auditor *audit.Service
}

func NewHandler(cache *appcache.Service, auditor *audit.Service) *Handler {
	return &Handler{cache: cache, auditor: auditor}
}

// RegisterRoutes mounts the deployment wide maintenance endpoints. Flushing
// the whole store also resets rate limit windows, so it is superadmin only.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Gates) {
	admin := r.Group("/admin", g.Permission.RequireSuperAdmin())
	{
		admin.POST("/cache/clear", h.ClearAll)
	}
}

// RegisterClinicRoutes lets a clinic's settings managers drop its cached
// settings after editing them out of band
func (h *Handler) RegisterClinicRoutes(clinic *gin.RouterGroup, g handler.Gates) {
	clinic.POST("/cache/clear", g.Permission.RequirePermission(model.PermSettingsUpdate), h.ClearClinic)
}

func (h *Handler) ClearAll(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.cache.ClearAllCache(ctx); err != nil {
		handler.Fail(c, err)
		return
	}

	log.Warn().Str("user_id", requestctx.User(c).ID.String()).Msg("application cache cleared")
	h.auditor.Log(ctx, model.AuditActionClearCache, model.AuditEntityCache, uuid.Nil, nil)
	httputil.RespondWithSuccess(c, gin.H{"cleared": "all"})
}

func (h *Handler) ClearClinic(c *gin.Context) {
	ctx := c.Request.Context()
	clinicID := requestctx.ClinicID(c)
	h.cache.InvalidateClinicCache(ctx, clinicID)

	h.auditor.Log(ctx, model.AuditActionClearCache, model.AuditEntityClinic, clinicID, &audit.LogOptions{
		ClinicID: &clinicID,
	})
	httputil.RespondWithSuccess(c, gin.H{"cleared": clinicID})
}
