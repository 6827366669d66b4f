package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	"github.com/jwalitptl/clinic-api/internal/service/rbac"
)

var ErrClinicNotFound = errors.New("clinic not found")

type Service struct {
	repo    repository.ClinicRepository
	roles   repository.RBACRepository
	rbac    *rbac.Service
	auditor *audit.Service
}

func NewService(repo repository.ClinicRepository, roles repository.RBACRepository, rbacSvc *rbac.Service, auditor *audit.Service) *Service {
	return &Service{repo: repo, roles: roles, rbac: rbacSvc, auditor: auditor}
}

// Create adds a clinic and makes the creator its admin
func (s *Service) Create(ctx context.Context, owner *model.User, req *model.CreateClinicRequest) (*model.Clinic, error) {
	adminRole, err := s.roles.GetRoleByName(ctx, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin role: %w", err)
	}

	name := strings.TrimSpace(req.Name)
	slug := model.Slugify(name)
	taken, err := s.repo.SlugExists(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check clinic slug: %w", err)
	}
	if taken || slug == "" {
		slug = strings.Trim(fmt.Sprintf("%s-%s", slug, uuid.NewString()[:6]), "-")
	}

	clinic := &model.Clinic{
		Name:    name,
		Slug:    slug,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
		Status:  model.ClinicStatusActive,
		OwnerID: &owner.ID,
	}
	if err := s.repo.Create(ctx, clinic); err != nil {
		return nil, fmt.Errorf("failed to create clinic: %w", err)
	}
	if err := s.rbac.AssignRoleInClinic(ctx, owner.ID, clinic.ID, adminRole.ID); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, model.AuditActionCreate, model.AuditEntityClinic, clinic.ID, &audit.LogOptions{
		ClinicID: &clinic.ID,
		Changes:  clinic,
	})
	return clinic, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	clinic, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrClinicNotFound
		}
		return nil, fmt.Errorf("failed to get clinic: %w", err)
	}
	return clinic, nil
}

// ListForUser returns the clinics where the user holds a role
func (s *Service) ListForUser(ctx context.Context, user *model.User) ([]*model.Clinic, error) {
	clinics, err := s.repo.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinics: %w", err)
	}
	if clinics == nil {
		clinics = []*model.Clinic{}
	}
	return clinics, nil
}
