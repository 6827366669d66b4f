package clinic

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	"github.com/jwalitptl/clinic-api/internal/service/clinic"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	svc *clinic.Service
}

func NewHandler(svc *clinic.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Gates) {
	clinics := r.Group("/clinics")
	{
		clinics.GET("", h.ListClinics)
		clinics.POST("",
			g.License.RequireFeature(string(model.FeatureMultiClinic)),
			g.License.RequireUsage(string(model.UsageClinics)),
			h.CreateClinic,
		)
	}
}

// RegisterClinicRoutes mounts the routes of the clinic group that already
// enforces membership
func (h *Handler) RegisterClinicRoutes(clinic *gin.RouterGroup, g handler.Gates) {
	clinic.GET("", g.Permission.RequirePermission(model.PermClinicRead), h.GetClinic)
}

func (h *Handler) CreateClinic(c *gin.Context) {
	var req model.CreateClinicRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	created, err := h.svc.Create(c.Request.Context(), requestctx.User(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, created)
}

func (h *Handler) GetClinic(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "clinic_id")
	if !ok {
		return
	}

	found, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, found)
}

// ListClinics returns the clinics the caller belongs to
func (h *Handler) ListClinics(c *gin.Context) {
	clinics, err := h.svc.ListForUser(c.Request.Context(), requestctx.User(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, clinics)
}
