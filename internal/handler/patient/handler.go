package patient

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	"github.com/jwalitptl/clinic-api/internal/service/patient"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

// Access answers the role based questions asked before patient data leaves
// the server
type Access interface {
	CanAccessPatientData(ctx context.Context, user *model.User, clinicID uuid.UUID) bool
	CanAccessClinicalNotes(ctx context.Context, user *model.User, clinicID uuid.UUID) bool
}

type Handler struct {
	svc    *patient.Service
	access Access
}

func NewHandler(svc *patient.Service, access Access) *Handler {
	return &Handler{svc: svc, access: access}
}

func (h *Handler) RegisterRoutes(clinic *gin.RouterGroup, g handler.Gates) {
	patients := clinic.Group("/patients", h.requirePatientData)
	{
		patients.GET("", g.Permission.RequirePermission(model.PermPatientRead), h.ListPatients)
		patients.POST("",
			g.Permission.RequirePermission(model.PermPatientCreate),
			g.License.RequireUsage(string(model.UsagePatients)),
			h.CreatePatient,
		)
		patients.GET("/:id", g.Permission.RequirePermission(model.PermPatientRead), h.GetPatient)
	}
}

// requirePatientData stops roles outside the patient data allow-list, such
// as custom roles, even when they were granted patient permissions
func (h *Handler) requirePatientData(c *gin.Context) {
	user := requestctx.User(c)
	clinicID := requestctx.ClinicID(c)
	if h.access.CanAccessPatientData(c.Request.Context(), user, clinicID) {
		c.Next()
		return
	}
	if user != nil {
		log.Warn().
			Str("user_id", user.ID.String()).
			Str("clinic_id", clinicID.String()).
			Msg("patient data access denied")
	}
	httputil.AbortWithError(c, apperrors.Forbidden(
		apperrors.CodeInsufficientPermissions, "your role cannot access patient data",
	))
}

// redact hides clinical notes from roles that may not read them
func (h *Handler) redact(c *gin.Context, patients ...*model.Patient) {
	if h.access.CanAccessClinicalNotes(c.Request.Context(), requestctx.User(c), requestctx.ClinicID(c)) {
		return
	}
	for _, p := range patients {
		p.Notes = nil
	}
}

type listResponse struct {
	Patients []*model.Patient `json:"patients"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	created, err := h.svc.Create(c.Request.Context(), requestctx.ClinicID(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	h.redact(c, created)
	httputil.RespondWithCreated(c, created)
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	found, err := h.svc.Get(c.Request.Context(), requestctx.ClinicID(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	h.redact(c, found)
	httputil.RespondWithSuccess(c, found)
}

func (h *Handler) ListPatients(c *gin.Context) {
	var filters model.PatientFilters
	if !handler.BindQuery(c, &filters) {
		return
	}

	patients, total, err := h.svc.List(c.Request.Context(), requestctx.ClinicID(c), &filters)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	h.redact(c, patients...)
	httputil.RespondWithSuccess(c, listResponse{
		Patients: patients,
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	})
}
