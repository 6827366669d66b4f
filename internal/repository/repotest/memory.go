// Package repotest provides in-memory repositories for service and HTTP tests
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

// DB is a single in-memory dataset shared by every fake repository
type DB struct {
	mu sync.Mutex

	Users       map[uuid.UUID]*model.User
	Clinics     map[uuid.UUID]*model.Clinic
	Roles       map[uuid.UUID]*model.Role
	Permissions map[model.PermissionSlug]*model.Permission
	RolePerms   map[uuid.UUID][]model.PermissionSlug
	Assignments []model.UserClinicRole
	Licenses    []*model.License
	Settings    map[string]*model.Setting
	Patients    []*model.Patient
	AuditLogs   []*model.AuditLog
	Counts      map[model.UsageKind]int

	// Err, when set, is returned by every repository call
	Err error
}

func NewDB() *DB {
	return &DB{
		Users:       map[uuid.UUID]*model.User{},
		Clinics:     map[uuid.UUID]*model.Clinic{},
		Roles:       map[uuid.UUID]*model.Role{},
		Permissions: map[model.PermissionSlug]*model.Permission{},
		RolePerms:   map[uuid.UUID][]model.PermissionSlug{},
		Settings:    map[string]*model.Setting{},
		Counts:      map[model.UsageKind]int{},
	}
}

// SeedCatalog installs the system roles with their default permissions
func (db *DB) SeedCatalog() map[model.RoleName]*model.Role {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make(map[model.RoleName]*model.Role, len(model.SystemRoles))
	for _, p := range model.AllPermissions {
		db.Permissions[p] = &model.Permission{Base: model.Base{ID: uuid.New()}, Slug: p, Module: p.Module(), Action: p.Action()}
	}
	for _, name := range model.SystemRoles {
		role := &model.Role{Base: model.Base{ID: uuid.New()}, Name: name, DisplayName: string(name), IsSystemRole: true}
		db.Roles[role.ID] = role
		db.RolePerms[role.ID] = append([]model.PermissionSlug(nil), model.DefaultRolePermissions[name]...)
		out[name] = role
	}
	return out
}

// AddUser stores a copy of u and returns u with its id set
func (db *DB) AddUser(u *model.User) *model.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	db.Users[u.ID] = &cp
	return u
}

// AddClinic stores a clinic
func (db *DB) AddClinic(name string) *model.Clinic {
	db.mu.Lock()
	defer db.mu.Unlock()
	c := &model.Clinic{Base: model.Base{ID: uuid.New()}, Name: name, Slug: model.Slugify(name), Status: model.ClinicStatusActive}
	db.Clinics[c.ID] = c
	return c
}

// Assign gives user the role in clinic at the given time
func (db *DB) Assign(userID, clinicID uuid.UUID, role *model.Role, at time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.upsertAssignment(model.UserClinicRole{UserID: userID, ClinicID: clinicID, RoleID: role.ID, RoleName: role.Name, CreatedAt: at})
}

func (db *DB) upsertAssignment(a model.UserClinicRole) {
	for i, existing := range db.Assignments {
		if existing.UserID == a.UserID && existing.ClinicID == a.ClinicID {
			a.CreatedAt = existing.CreatedAt
			db.Assignments[i] = a
			return
		}
	}
	db.Assignments = append(db.Assignments, a)
}

func settingKey(clinicID uuid.UUID, key string) string {
	return clinicID.String() + "/" + key
}

// Repos returns every repository backed by db
func (db *DB) Repos() repository.Repositories {
	return repository.Repositories{
		Users:        userRepo{db},
		Clinics:      clinicRepo{db},
		RBAC:         rbacRepo{db},
		Licenses:     licenseRepo{db},
		Usage:        usageRepo{db},
		Settings:     settingRepo{db},
		Patients:     patientRepo{db},
		Audit:        auditRepo{db},
		Registration: registrationRepo{db},
	}
}

type userRepo struct{ db *DB }

func (r userRepo) Create(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return r.db.Err
	}
	for _, existing := range r.db.Users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.db.Users[u.ID] = u
	return nil
}

func (r userRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return nil, r.db.Err
	}
	u, ok := r.db.Users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return nil, r.db.Err
	}
	for _, u := range r.db.Users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) Update(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.Users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *u
	r.db.Users[u.ID] = &cp
	return nil
}

func (r userRepo) UpdateTrial(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.Users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.TrialStartedAt != nil {
		return model.ErrTrialAlreadyStarted
	}
	stored.TrialStartedAt, stored.TrialEndsAt = u.TrialStartedAt, u.TrialEndsAt
	return nil
}

func (r userRepo) MarkLicenseActivated(_ context.Context, userID uuid.UUID, key string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.Users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.HasActivatedLicense = true
	u.LicenseKey = &key
	return nil
}

func (r userRepo) CompleteOnboarding(_ context.Context, userID uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.Users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.OnboardingCompleted = true
	return nil
}

func (r userRepo) TouchLastLogin(_ context.Context, userID uuid.UUID, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if u, ok := r.db.Users[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (r userRepo) ListTrialsEndingBetween(_ context.Context, from, to time.Time) ([]*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.User
	for _, u := range r.db.Users {
		if u.HasActivatedLicense || !u.IsActive || u.TrialEndsAt == nil {
			continue
		}
		if !u.TrialEndsAt.Before(from) && u.TrialEndsAt.Before(to) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrialEndsAt.Before(*out[j].TrialEndsAt) })
	return out, nil
}

type clinicRepo struct{ db *DB }

func (r clinicRepo) Create(_ context.Context, c *model.Clinic) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return r.db.Err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Slug == "" {
		c.Slug = model.Slugify(c.Name)
	}
	r.db.Clinics[c.ID] = c
	return nil
}

func (r clinicRepo) Get(_ context.Context, id uuid.UUID) (*model.Clinic, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.Clinics[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r clinicRepo) Update(_ context.Context, c *model.Clinic) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.Clinics[c.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *c
	r.db.Clinics[c.ID] = &cp
	return nil
}

func (r clinicRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]*model.Clinic, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Clinic
	for _, a := range r.db.Assignments {
		if a.UserID == userID {
			if c, ok := r.db.Clinics[a.ClinicID]; ok {
				cp := *c
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (r clinicRepo) SlugExists(_ context.Context, slug string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.Clinics {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

type registrationRepo struct{ db *DB }

func (r registrationRepo) CreateAccount(_ context.Context, u *model.User, c *model.Clinic, a *model.UserClinicRole) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return r.db.Err
	}
	for _, existing := range r.db.Users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	u.ID, c.ID = uuid.New(), uuid.New()
	u.CreatedAt, c.CreatedAt = now, now
	if c.Slug == "" {
		c.Slug = model.Slugify(c.Name)
	}
	c.OwnerID = &u.ID
	a.UserID, a.ClinicID, a.CreatedAt = u.ID, c.ID, now
	if role, ok := r.db.Roles[a.RoleID]; ok {
		a.RoleName = role.Name
	}
	r.db.Users[u.ID] = u
	r.db.Clinics[c.ID] = c
	r.db.Assignments = append(r.db.Assignments, *a)
	return nil
}
