package report

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	"github.com/jwalitptl/clinic-api/internal/service/license"
	"github.com/jwalitptl/clinic-api/internal/service/patient"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

// Settings reads the clinic's string settings
type Settings interface {
	GetString(ctx context.Context, clinicID uuid.UUID, key, def string) string
}

type Handler struct {
	license  *license.Service
	patients *patient.Service
	settings Settings
}

func NewHandler(license *license.Service, patients *patient.Service, settings Settings) *Handler {
	return &Handler{license: license, patients: patients, settings: settings}
}

func (h *Handler) RegisterRoutes(clinic *gin.RouterGroup, g handler.Gates) {
	clinic.GET("/reports/usage",
		g.License.RequireFeature(string(model.FeatureReports)),
		g.Permission.RequireAllPermissions(model.PermReportRead, model.PermPatientRead),
		h.Usage,
	)
}

type usageReport struct {
	ClinicID       uuid.UUID                             `json:"clinic_id"`
	ClinicPatients int64                                 `json:"clinic_patients"`
	Usage          map[model.UsageKind]model.UsageResult `json:"usage"`
	Timezone       string                                `json:"timezone"`
	GeneratedAt    time.Time                             `json:"generated_at"`
}

// Usage reports deployment wide usage against the license ceilings along
// with the patient count of the clinic, stamped in the clinic's timezone
func (h *Handler) Usage(c *gin.Context) {
	ctx := c.Request.Context()
	clinicID := requestctx.ClinicID(c)

	usage, err := h.license.Usage(ctx)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	_, total, err := h.patients.List(ctx, clinicID, &model.PatientFilters{Pagination: model.Pagination{PageSize: 1}})
	if err != nil {
		handler.Fail(c, err)
		return
	}

	tz := h.settings.GetString(ctx, clinicID, model.SettingClinicTimezone, "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn().Err(err).Str("clinic_id", clinicID.String()).Str("timezone", tz).Msg("unknown clinic timezone, using UTC")
		tz, loc = "UTC", time.UTC
	}

	httputil.RespondWithSuccess(c, usageReport{
		ClinicID:       clinicID,
		ClinicPatients: total,
		Usage:          usage,
		Timezone:       tz,
		GeneratedAt:    time.Now().In(loc),
	})
}
