package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-api/internal/email"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/repotest"
	"github.com/jwalitptl/clinic-api/internal/service/appcache"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	"github.com/jwalitptl/clinic-api/internal/service/rbac"
	"github.com/jwalitptl/clinic-api/internal/service/trial"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/cache"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

func newService(t *testing.T, db *repotest.DB) *Service {
	t.Helper()
	repos := db.Repos()
	store := cache.NewMemoryStore(time.Minute, time.Minute)
	t.Cleanup(func() { store.Close() })
	auditor := audit.NewService(repos.Audit)
	return NewService(Deps{
		Users:        repos.Users,
		Clinics:      repos.Clinics,
		Roles:        repos.RBAC,
		Registration: repos.Registration,
		JWT:          auth.NewJWTService(auth.Config{Secret: "test-secret", Issuer: "clinic-api"}),
		Hasher:       security.NewBcryptHasher(bcrypt.MinCost),
		Trial:        trial.NewService(repos.Users, 0),
		RBAC:         rbac.NewService(repos.RBAC, appcache.NewService(store, appcache.TTLs{}, nil), auditor),
		Mailer:       email.NewService(email.Config{}),
		Auditor:      auditor,
	})
}

func registerRequest() *model.RegisterRequest {
	return &model.RegisterRequest{
		Name:                 "Dana Reyes",
		Email:                "Dana@Example.com",
		Password:             "correct-horse",
		PasswordConfirmation: "correct-horse",
		ClinicName:           "Harbor Family Practice",
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	roles := db.SeedCatalog()
	svc := newService(t, db)

	reg, err := svc.Register(ctx, registerRequest())
	require.NoError(t, err)

	assert.Equal(t, "/onboarding", reg.Redirect)
	assert.Equal(t, "dana@example.com", reg.User.Email)
	assert.Equal(t, model.RoleAdmin, reg.Role.Name)
	assert.Equal(t, "harbor-family-practice", reg.Clinic.Slug)
	assert.NotEqual(t, "correct-horse", reg.User.PasswordHash)

	require.Len(t, db.Clinics, 1)
	require.Len(t, db.Assignments, 1)
	a := db.Assignments[0]
	assert.Equal(t, reg.User.ID, a.UserID)
	assert.Equal(t, reg.Clinic.ID, a.ClinicID)
	assert.Equal(t, roles[model.RoleAdmin].ID, a.RoleID)

	require.NotNil(t, reg.User.TrialEndsAt)
	assert.True(t, reg.User.IsOnTrial(time.Now()))
	assert.Equal(t, 13, reg.User.TrialDaysRemaining(time.Now()))

	assert.Equal(t, []string{model.AuditActionRegister}, db.AuditActions())

	_, err = svc.Register(ctx, registerRequest())
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Len(t, db.Clinics, 1)
}

func TestService_Register_DefaultClinicName(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	db.SeedCatalog()
	db.AddClinic("Dana Reyes's Clinic")
	svc := newService(t, db)

	req := registerRequest()
	req.ClinicName = ""
	reg, err := svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Dana Reyes's Clinic", reg.Clinic.Name)
	assert.NotEqual(t, "dana-reyes-s-clinic", reg.Clinic.Slug)
	assert.Contains(t, reg.Clinic.Slug, "dana-reyes-s-clinic-")
}

func TestService_Register_MissingAdminRole(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	svc := newService(t, db)

	_, err := svc.Register(ctx, registerRequest())
	assert.ErrorIs(t, err, ErrAdminRoleMissing)
	assert.Empty(t, db.Users)
	assert.Empty(t, db.Clinics)
}

func TestService_LoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	db.SeedCatalog()
	svc := newService(t, db)

	reg, err := svc.Register(ctx, registerRequest())
	require.NoError(t, err)

	_, err = svc.Login(ctx, &model.LoginRequest{Email: "dana@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, &model.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tokens, err := svc.Login(ctx, &model.LoginRequest{Email: " DANA@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.NotNil(t, db.Users[reg.User.ID].LastLoginAt)

	user, err := svc.Authenticate(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, user.ID)

	_, err = svc.Authenticate(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	refreshed, err := svc.RefreshToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	db.Users[reg.User.ID].IsActive = false
	_, err = svc.Authenticate(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, ErrAccountDeactivated)
	_, err = svc.Login(ctx, &model.LoginRequest{Email: "dana@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrAccountDeactivated)
}

func TestService_MeAndOnboarding(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	db.SeedCatalog()
	svc := newService(t, db)

	reg, err := svc.Register(ctx, registerRequest())
	require.NoError(t, err)

	profile, err := svc.Me(ctx, reg.User)
	require.NoError(t, err)
	require.Len(t, profile.Roles, 1)
	require.NotNil(t, profile.PrimaryRole)
	assert.Equal(t, model.RoleAdmin, profile.PrimaryRole.Name)
	assert.True(t, profile.Trial.OnTrial)

	require.NoError(t, svc.CompleteOnboarding(ctx, reg.User))
	assert.True(t, db.Users[reg.User.ID].OnboardingCompleted)
	require.NoError(t, svc.CompleteOnboarding(ctx, reg.User))
	assert.Equal(t, []string{model.AuditActionRegister, model.AuditActionUpdate}, db.AuditActions())
}
