package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/email"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	"github.com/jwalitptl/clinic-api/internal/service/rbac"
	"github.com/jwalitptl/clinic-api/internal/service/trial"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrEmailTaken         = errors.New("email already registered")
	// ErrAdminRoleMissing means the role catalog was never seeded
	ErrAdminRoleMissing = errors.New("admin role is missing from the role catalog")
)

type Service struct {
	users        repository.UserRepository
	clinics      repository.ClinicRepository
	roles        repository.RBACRepository
	registration repository.RegistrationRepository
	jwtSvc       auth.JWTService
	hasher       security.PasswordHasher
	trial        *trial.Service
	rbac         *rbac.Service
	mailer       email.Service
	auditor      *audit.Service
	onboarding   string
	now          func() time.Time
}

type Deps struct {
	Users        repository.UserRepository
	Clinics      repository.ClinicRepository
	Roles        repository.RBACRepository
	Registration repository.RegistrationRepository
	JWT          auth.JWTService
	Hasher       security.PasswordHasher
	Trial        *trial.Service
	RBAC         *rbac.Service
	Mailer       email.Service
	Auditor      *audit.Service
	// OnboardingPath is where a freshly registered user is sent
	OnboardingPath string
}

func NewService(d Deps) *Service {
	if d.OnboardingPath == "" {
		d.OnboardingPath = "/onboarding"
	}
	return &Service{
		users:        d.Users,
		clinics:      d.Clinics,
		roles:        d.Roles,
		registration: d.Registration,
		jwtSvc:       d.JWT,
		hasher:       d.Hasher,
		trial:        d.Trial,
		rbac:         d.RBAC,
		mailer:       d.Mailer,
		auditor:      d.Auditor,
		onboarding:   d.OnboardingPath,
		now:          time.Now,
	}
}

// Register creates the account, its first clinic and the admin assignment,
// and opens the trial window.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.Registration, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	}

	adminRole, err := s.roles.GetRoleByName(ctx, model.RoleAdmin)
	if err != nil {
		log.Error().Err(err).Msg("registration aborted: admin role not found, the role catalog must be seeded")
		return nil, fmt.Errorf("%w: %v", ErrAdminRoleMissing, err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Phone:        req.Phone,
		IsActive:     true,
	}
	if err := s.trial.Open(user); err != nil {
		return nil, err
	}

	clinic, err := s.newClinic(ctx, req)
	if err != nil {
		return nil, err
	}

	assignment := &model.UserClinicRole{RoleID: adminRole.ID, RoleName: adminRole.Name}
	if err := s.registration.CreateAccount(ctx, user, clinic, assignment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.auditor.Log(ctx, model.AuditActionRegister, model.AuditEntityUser, user.ID, &audit.LogOptions{
		ClinicID: &clinic.ID,
		Changes:  map[string]interface{}{"email": user.Email, "clinic": clinic.Name},
	})

	if err := s.mailer.SendWelcome(ctx, user.Email, user.Name, clinic.Name, s.trial.Days()); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to send welcome mail")
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("clinic_id", clinic.ID.String()).
		Msg("account registered")

	tokens, err := s.generateTokens(user)
	if err != nil {
		return nil, err
	}
	return &model.Registration{
		User:     user,
		Clinic:   clinic,
		Role:     adminRole,
		Tokens:   tokens,
		Redirect: s.onboarding,
	}, nil
}

func (s *Service) newClinic(ctx context.Context, req *model.RegisterRequest) (*model.Clinic, error) {
	name := strings.TrimSpace(req.ClinicName)
	if name == "" {
		name = fmt.Sprintf("%s's Clinic", strings.TrimSpace(req.Name))
	}
	slug := model.Slugify(name)
	if slug == "" {
		slug = "clinic"
	}
	taken, err := s.clinics.SlugExists(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check clinic slug: %w", err)
	}
	if taken {
		slug = fmt.Sprintf("%s-%s", slug, uuid.NewString()[:6])
	}
	return &model.Clinic{Name: name, Slug: slug, Status: model.ClinicStatusActive}, nil
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record login time")
	}
	return s.generateTokens(user)
}

func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	user, err := s.loadActive(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return s.generateTokens(user)
}

// Authenticate resolves an access token to an active user
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.loadActive(ctx, claims.UserID)
}

func (s *Service) loadActive(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}
	return user, nil
}

// Me builds the profile of the authenticated user
func (s *Service) Me(ctx context.Context, user *model.User) (*model.UserProfile, error) {
	roles, err := s.rbac.ListUserRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	if roles == nil {
		roles = []model.UserClinicRole{}
	}
	profile := &model.UserProfile{
		User:  user,
		Roles: roles,
		Trial: s.trial.Status(user),
	}
	if primary, ok := s.rbac.GetPrimaryRole(ctx, user); ok {
		profile.PrimaryRole = primary
	}
	return profile, nil
}

func (s *Service) CompleteOnboarding(ctx context.Context, user *model.User) error {
	if user.OnboardingCompleted {
		return nil
	}
	if err := s.users.CompleteOnboarding(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to complete onboarding: %w", err)
	}
	user.OnboardingCompleted = true
	s.auditor.Log(ctx, model.AuditActionUpdate, model.AuditEntityUser, user.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"onboarding_completed": true},
	})
	return nil
}

// StartTrial opens the trial of an account that never had one, such as a
// user provisioned by an operator instead of registering. A consumed trial
// is never reopened.
func (s *Service) StartTrial(ctx context.Context, user *model.User) (model.TrialStatus, error) {
	if err := s.trial.StartTrial(ctx, user); err != nil {
		return model.TrialStatus{}, err
	}
	s.auditor.Log(ctx, model.AuditActionStartTrial, model.AuditEntityUser, user.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"trial_ends_at": user.TrialEndsAt},
	})
	return s.trial.Status(user), nil
}

func (s *Service) generateTokens(user *model.User) (*model.TokenResponse, error) {
	accessToken, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.jwtSvc.GenerateRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &model.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwtSvc.AccessTTL().Seconds()),
	}, nil
}
