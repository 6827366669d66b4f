package audit

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	svc *audit.Service
}

func NewHandler(svc *audit.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterClinicRoutes mounts the audit trail of one clinic
func (h *Handler) RegisterClinicRoutes(clinic *gin.RouterGroup, g handler.Gates) {
	logs := clinic.Group("/audit-logs", g.Permission.RequirePermission(model.PermRoleManage))
	{
		logs.GET("", h.ListLogs)
		logs.GET("/export", h.ExportLogs)
	}
}

func (h *Handler) filters(c *gin.Context, maxPageSize int) (*model.AuditFilters, bool) {
	var f model.AuditFilters
	if !handler.BindQuery(c, &f) {
		return nil, false
	}
	clinicID := requestctx.ClinicID(c)
	f.ClinicID = &clinicID
	f.Pagination = f.Pagination.Normalize(maxPageSize)
	return &f, true
}

func (h *Handler) ListLogs(c *gin.Context) {
	f, ok := h.filters(c, 100)
	if !ok {
		return
	}

	logs, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if logs == nil {
		logs = []*model.AuditLog{}
	}
	httputil.RespondWithSuccess(c, logs)
}

// ExportLogs streams the filtered trail as CSV
func (h *Handler) ExportLogs(c *gin.Context) {
	f, ok := h.filters(c, 10000)
	if !ok {
		return
	}

	logs, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	filename := fmt.Sprintf("audit_logs_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "created_at", "user_id", "action", "entity_type", "entity_id", "ip_address", "changes"})
	for _, l := range logs {
		userID := ""
		if l.UserID != nil {
			userID = l.UserID.String()
		}
		_ = w.Write([]string{
			l.ID.String(),
			l.CreatedAt.Format(time.RFC3339),
			userID,
			l.Action,
			l.EntityType,
			l.EntityID.String(),
			l.IPAddress,
			string(l.Changes),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Error().Err(err).Msg("failed to write audit export")
	}
}
