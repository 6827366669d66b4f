package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrMissingField    = errors.New("required patient field missing")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Settings is the clinic configuration the patient service reads
type Settings interface {
	GetBool(ctx context.Context, clinicID uuid.UUID, key string, def bool) bool
	GetInt(ctx context.Context, clinicID uuid.UUID, key string, def int64) int64
	GetJSON(ctx context.Context, clinicID uuid.UUID, key string, dest interface{}) (bool, error)
}

type Service struct {
	repo     repository.PatientRepository
	auditor  *audit.Service
	settings Settings
}

func NewService(repo repository.PatientRepository, auditor *audit.Service, settings Settings) *Service {
	return &Service{repo: repo, auditor: auditor, settings: settings}
}

func (s *Service) Create(ctx context.Context, clinicID uuid.UUID, req *model.CreatePatientRequest) (*model.Patient, error) {
	if err := s.checkRequired(ctx, clinicID, req); err != nil {
		return nil, err
	}

	patient := &model.Patient{
		ClinicID:    clinicID,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       req.Email,
		Phone:       req.Phone,
		DateOfBirth: req.DateOfBirth,
		Gender:      req.Gender,
		Notes:       req.Notes,
	}
	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}

	s.auditor.Log(ctx, model.AuditActionCreate, model.AuditEntityPatient, patient.ID, &audit.LogOptions{
		ClinicID: &clinicID,
	})
	return patient, nil
}

// checkRequired enforces the optional fields a clinic lists in
// patient_required_fields
func (s *Service) checkRequired(ctx context.Context, clinicID uuid.UUID, req *model.CreatePatientRequest) error {
	var fields []string
	found, err := s.settings.GetJSON(ctx, clinicID, model.SettingPatientRequiredFields, &fields)
	if err != nil {
		log.Warn().Err(err).Str("clinic_id", clinicID.String()).Msg("patient_required_fields is not a list, ignoring it")
		return nil
	}
	if !found {
		return nil
	}

	present := map[string]bool{
		"email":         req.Email != nil && strings.TrimSpace(*req.Email) != "",
		"phone":         req.Phone != nil && strings.TrimSpace(*req.Phone) != "",
		"date_of_birth": req.DateOfBirth != nil,
		"gender":        req.Gender != nil,
		"notes":         req.Notes != nil && strings.TrimSpace(*req.Notes) != "",
	}
	var missing []string
	for _, f := range fields {
		if ok, known := present[f]; known && !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.repo.Get(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	if s.settings.GetBool(ctx, clinicID, model.SettingAuditPatientReads, false) {
		s.auditor.Log(ctx, model.AuditActionRead, model.AuditEntityPatient, patient.ID, &audit.LogOptions{
			ClinicID: &clinicID,
		})
	}
	return patient, nil
}

// List pages through the clinic's patients. Without an explicit page size
// the clinic's patients_per_page setting applies.
func (s *Service) List(ctx context.Context, clinicID uuid.UUID, filters *model.PatientFilters) ([]*model.Patient, int64, error) {
	if filters == nil {
		filters = &model.PatientFilters{}
	}
	if filters.PageSize == 0 {
		filters.PageSize = int(s.settings.GetInt(ctx, clinicID, model.SettingPatientsPerPage, defaultPageSize))
	}
	filters.Pagination = filters.Pagination.Normalize(maxPageSize)
	patients, total, err := s.repo.List(ctx, clinicID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	if patients == nil {
		patients = []*model.Patient{}
	}
	return patients, total, nil
}
