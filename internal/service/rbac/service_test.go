package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/repotest"
	"github.com/jwalitptl/clinic-api/internal/service/appcache"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	"github.com/jwalitptl/clinic-api/pkg/cache"
)

type fixture struct {
	db    *repotest.DB
	roles map[model.RoleName]*model.Role
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := repotest.NewDB()
	roles := db.SeedCatalog()
	repos := db.Repos()
	store := cache.NewMemoryStore(time.Minute, time.Minute)
	t.Cleanup(func() { store.Close() })
	svc := NewService(repos.RBAC, appcache.NewService(store, appcache.TTLs{}, nil), audit.NewService(repos.Audit))
	return &fixture{db: db, roles: roles, svc: svc}
}

func (f *fixture) userWithRole(role model.RoleName, clinicID uuid.UUID) *model.User {
	u := f.db.AddUser(&model.User{Name: string(role), Email: string(role) + "@example.com", IsActive: true})
	f.db.Assign(u.ID, clinicID, f.roles[role], time.Now())
	return u
}

func TestService_RolePermissionMatrix(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	clinic := f.db.AddClinic("Matrix Clinic")

	for _, role := range model.SystemRoles {
		user := f.userWithRole(role, clinic.ID)
		granted := model.NewPermissionSet(model.DefaultRolePermissions[role]...)
		for _, perm := range model.AllPermissions {
			assert.Equal(t, granted.Has(perm), f.svc.HasPermissionInClinic(ctx, user, perm, clinic.ID),
				"role %s permission %s", role, perm)
		}
	}
}

func TestService_HasPermissionInClinic(t *testing.T) {
	ctx := context.Background()

	t.Run("scoped to clinic", func(t *testing.T) {
		f := newFixture(t)
		a, b := f.db.AddClinic("A"), f.db.AddClinic("B")
		doctor := f.userWithRole(model.RoleDoctor, a.ID)

		assert.True(t, f.svc.HasPermissionInClinic(ctx, doctor, model.PermPatientRead, a.ID))
		assert.False(t, f.svc.HasPermissionInClinic(ctx, doctor, model.PermPatientRead, b.ID))
		assert.False(t, f.svc.HasPermissionInClinic(ctx, doctor, model.PermPatientRead, uuid.Nil))
		assert.False(t, f.svc.HasPermissionInClinic(ctx, doctor, model.PermPatientRead, uuid.New()))
	})

	t.Run("superadmin flag bypasses clinic", func(t *testing.T) {
		f := newFixture(t)
		admin := f.db.AddUser(&model.User{Email: "root@example.com", IsActive: true, IsSuperAdmin: true})

		assert.True(t, f.svc.HasPermissionInClinic(ctx, admin, model.PermLicenseManage, uuid.New()))
		assert.True(t, f.svc.HasPermissionInClinic(ctx, admin, model.PermLicenseManage, uuid.Nil))
	})

	t.Run("superadmin role in any clinic", func(t *testing.T) {
		f := newFixture(t)
		a := f.db.AddClinic("A")
		sa := f.userWithRole(model.RoleSuperAdmin, a.ID)

		assert.True(t, f.svc.IsSuperAdmin(ctx, sa))
		assert.True(t, f.svc.HasPermissionInClinic(ctx, sa, model.PermStaffDelete, uuid.New()))
	})

	t.Run("nil user", func(t *testing.T) {
		f := newFixture(t)
		assert.False(t, f.svc.HasPermissionInClinic(ctx, nil, model.PermPatientRead, uuid.New()))
	})

	t.Run("repository failure denies", func(t *testing.T) {
		f := newFixture(t)
		a := f.db.AddClinic("A")
		doctor := f.userWithRole(model.RoleDoctor, a.ID)
		f.db.Err = errors.New("connection refused")

		assert.False(t, f.svc.HasPermissionInClinic(ctx, doctor, model.PermPatientRead, a.ID))
	})
}

func TestService_AnyAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.db.AddClinic("A")
	rec := f.userWithRole(model.RoleReceptionist, a.ID)

	assert.True(t, f.svc.HasAnyPermissionInClinic(ctx, rec, []model.PermissionSlug{model.PermClinicalNoteRead, model.PermPatientRead}, a.ID))
	assert.False(t, f.svc.HasAnyPermissionInClinic(ctx, rec, []model.PermissionSlug{model.PermClinicalNoteRead}, a.ID))
	assert.True(t, f.svc.HasAllPermissionsInClinic(ctx, rec, []model.PermissionSlug{model.PermPatientRead, model.PermBillingRead}, a.ID))
	assert.False(t, f.svc.HasAllPermissionsInClinic(ctx, rec, []model.PermissionSlug{model.PermPatientRead, model.PermPatientDelete}, a.ID))
}

func TestService_AssignmentInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.db.AddClinic("A")
	user := f.userWithRole(model.RoleReceptionist, a.ID)

	require.False(t, f.svc.HasPermissionInClinic(ctx, user, model.PermClinicalNoteRead, a.ID))

	require.NoError(t, f.svc.AssignRoleInClinic(ctx, user.ID, a.ID, f.roles[model.RoleDoctor].ID))
	assert.True(t, f.svc.HasPermissionInClinic(ctx, user, model.PermClinicalNoteRead, a.ID))

	require.NoError(t, f.svc.RemoveRoleFromClinic(ctx, user.ID, a.ID))
	assert.False(t, f.svc.HasPermissionInClinic(ctx, user, model.PermPatientRead, a.ID))
	assert.False(t, f.svc.HasAnyRoleInClinic(ctx, user.ID, a.ID))

	assert.Equal(t, []string{model.AuditActionAssignRole, model.AuditActionRemoveRole}, f.db.AuditActions())
}

func TestService_GetPrimaryRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b, c := f.db.AddClinic("A"), f.db.AddClinic("B"), f.db.AddClinic("C")
	user := f.db.AddUser(&model.User{Email: "multi@example.com", IsActive: true})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f.db.Assign(user.ID, a.ID, f.roles[model.RoleReceptionist], base)
	f.db.Assign(user.ID, b.ID, f.roles[model.RoleDoctor], base.Add(time.Hour))
	f.db.Assign(user.ID, c.ID, f.roles[model.RolePatient], base.Add(-time.Hour))

	role, ok := f.svc.GetPrimaryRole(ctx, user)
	require.True(t, ok)
	assert.Equal(t, model.RoleDoctor, role.Name)

	nobody := f.db.AddUser(&model.User{Email: "none@example.com", IsActive: true})
	_, ok = f.svc.GetPrimaryRole(ctx, nobody)
	assert.False(t, ok)
}

func TestPrimaryAssignment_TieBreak(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := model.UserClinicRole{ClinicID: uuid.New(), RoleName: model.RoleDoctor, CreatedAt: base}
	later := model.UserClinicRole{ClinicID: uuid.New(), RoleName: model.RoleDoctor, CreatedAt: base.Add(time.Minute)}

	got := PrimaryAssignment([]model.UserClinicRole{later, first})
	require.NotNil(t, got)
	assert.Equal(t, first.ClinicID, got.ClinicID)

	x := model.UserClinicRole{ClinicID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), RoleName: model.RoleAdmin, CreatedAt: base}
	y := model.UserClinicRole{ClinicID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), RoleName: model.RoleAdmin, CreatedAt: base}
	assert.Equal(t, x.ClinicID, PrimaryAssignment([]model.UserClinicRole{y, x}).ClinicID)

	assert.Nil(t, PrimaryAssignment(nil))
}

func TestService_ClinicalNotesAndPatientData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.db.AddClinic("A")

	cases := []struct {
		role     model.RoleName
		notes    bool
		patients bool
	}{
		{model.RoleAdmin, true, true},
		{model.RoleDoctor, true, true},
		{model.RoleReceptionist, false, true},
		{model.RoleMedRep, false, false},
		{model.RolePatient, false, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			u := f.userWithRole(tc.role, a.ID)
			assert.Equal(t, tc.notes, f.svc.CanAccessClinicalNotes(ctx, u, a.ID))
			assert.Equal(t, tc.patients, f.svc.CanAccessPatientData(ctx, u, a.ID))
		})
	}
}

func TestService_SystemRolesImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.roles[model.RoleAdmin]

	_, err := f.svc.UpdateRole(ctx, admin.ID, "Boss", "")
	assert.ErrorIs(t, err, ErrSystemRoleImmutable)
	assert.ErrorIs(t, f.svc.DeleteRole(ctx, admin.ID), ErrSystemRoleImmutable)
	assert.ErrorIs(t, f.svc.SyncRolePermissions(ctx, admin.ID, nil), ErrSystemRoleImmutable)
	assert.ErrorIs(t, f.svc.CreateRole(ctx, &model.Role{Name: model.RoleDoctor}, nil), ErrInvalidRole)
}

func TestService_CustomRoleLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.db.AddClinic("A")

	role := &model.Role{Name: "nurse", DisplayName: "Nurse"}
	require.NoError(t, f.svc.CreateRole(ctx, role, []model.PermissionSlug{model.PermPatientRead}))
	assert.False(t, role.IsSystemRole)

	user := f.db.AddUser(&model.User{Email: "nurse@example.com", IsActive: true})
	require.NoError(t, f.svc.AssignRoleInClinic(ctx, user.ID, a.ID, role.ID))
	require.True(t, f.svc.HasPermissionInClinic(ctx, user, model.PermPatientRead, a.ID))
	require.False(t, f.svc.HasPermissionInClinic(ctx, user, model.PermPatientUpdate, a.ID))

	require.NoError(t, f.svc.SyncRolePermissions(ctx, role.ID, []model.PermissionSlug{model.PermPatientUpdate}))
	assert.False(t, f.svc.HasPermissionInClinic(ctx, user, model.PermPatientRead, a.ID))
	assert.True(t, f.svc.HasPermissionInClinic(ctx, user, model.PermPatientUpdate, a.ID))

	err := f.svc.SyncRolePermissions(ctx, role.ID, []model.PermissionSlug{"patient.fly"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	assert.ErrorIs(t, f.svc.DeleteRole(ctx, role.ID), ErrInvalidRole)
	require.NoError(t, f.svc.RemoveRoleFromClinic(ctx, user.ID, a.ID))
	require.NoError(t, f.svc.DeleteRole(ctx, role.ID))

	_, _, err = f.svc.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestService_SeedSystemRoles(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB()
	repos := db.Repos()
	store := cache.NewMemoryStore(time.Minute, time.Minute)
	defer store.Close()
	svc := NewService(repos.RBAC, appcache.NewService(store, appcache.TTLs{}, nil), audit.NewService(repos.Audit))

	require.NoError(t, svc.SeedSystemRoles(ctx))
	require.NoError(t, svc.SeedSystemRoles(ctx))

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, len(model.SystemRoles))

	perms, err := svc.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(model.AllPermissions))

	for _, r := range roles {
		assert.True(t, r.IsSystemRole)
		_, got, err := svc.GetRole(ctx, r.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, model.DefaultRolePermissions[r.Name], got)
	}
}
