package repotest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

// AddLicense stores l as the newest license
func (db *DB) AddLicense(l *model.License) *model.License {
	db.mu.Lock()
	defer db.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	db.Licenses = append(db.Licenses, l)
	return l
}

type licenseRepo struct{ db *DB }

func (r licenseRepo) GetCurrent(_ context.Context) (*model.License, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return nil, r.db.Err
	}
	if len(r.db.Licenses) == 0 {
		return nil, repository.ErrNotFound
	}
	cp := *r.db.Licenses[len(r.db.Licenses)-1]
	return &cp, nil
}

func (r licenseRepo) GetByKey(_ context.Context, key string) (*model.License, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, l := range r.db.Licenses {
		if l.LicenseKey == key {
			cp := *l
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r licenseRepo) Create(_ context.Context, l *model.License) error {
	r.db.AddLicense(l)
	return nil
}

func (r licenseRepo) Update(_ context.Context, l *model.License) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, existing := range r.db.Licenses {
		if existing.ID == l.ID {
			cp := *l
			r.db.Licenses[i] = &cp
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r licenseRepo) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, l := range r.db.Licenses {
		if l.Status == model.LicenseStatusActive && l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
			l.Status = model.LicenseStatusExpired
			n++
		}
	}
	return n, nil
}

type usageRepo struct{ db *DB }

func (r usageRepo) Count(_ context.Context, kind model.UsageKind, _ time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return 0, r.db.Err
	}
	if n, ok := r.db.Counts[kind]; ok {
		return n, nil
	}
	switch kind {
	case model.UsageUsers:
		return len(r.db.Users), nil
	case model.UsageClinics:
		return len(r.db.Clinics), nil
	case model.UsagePatients:
		return len(r.db.Patients), nil
	}
	return 0, nil
}

type settingRepo struct{ db *DB }

func (r settingRepo) Get(_ context.Context, clinicID uuid.UUID, key string) (*model.Setting, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return nil, r.db.Err
	}
	s, ok := r.db.Settings[settingKey(clinicID, key)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r settingRepo) Upsert(_ context.Context, s *model.Setting) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return r.db.Err
	}
	k := settingKey(s.ClinicID, s.Key)
	if existing, ok := r.db.Settings[k]; ok {
		s.ID, s.CreatedAt = existing.ID, existing.CreatedAt
	} else if s.ID == uuid.Nil {
		s.ID = uuid.New()
		s.CreatedAt = time.Now().UTC()
	}
	s.UpdatedAt = time.Now().UTC()
	cp := *s
	r.db.Settings[k] = &cp
	return nil
}

func (r settingRepo) filter(clinicID uuid.UUID, keep func(*model.Setting) bool) []*model.Setting {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Setting
	for _, s := range r.db.Settings {
		if s.ClinicID == clinicID && keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

func (r settingRepo) List(_ context.Context, clinicID uuid.UUID) ([]*model.Setting, error) {
	return r.filter(clinicID, func(*model.Setting) bool { return true }), nil
}

func (r settingRepo) ListByGroup(_ context.Context, clinicID uuid.UUID, group string) ([]*model.Setting, error) {
	return r.filter(clinicID, func(s *model.Setting) bool { return s.Group == group }), nil
}

func (r settingRepo) ListPublic(_ context.Context, clinicID uuid.UUID) ([]*model.Setting, error) {
	return r.filter(clinicID, func(s *model.Setting) bool { return s.IsPublic }), nil
}

func (r settingRepo) Delete(_ context.Context, clinicID uuid.UUID, key string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	k := settingKey(clinicID, key)
	if _, ok := r.db.Settings[k]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.Settings, k)
	return nil
}

type patientRepo struct{ db *DB }

func (r patientRepo) Create(_ context.Context, p *model.Patient) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.db.Patients = append(r.db.Patients, &cp)
	return nil
}

func (r patientRepo) Get(_ context.Context, clinicID, id uuid.UUID) (*model.Patient, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.Patients {
		if p.ID == id && p.ClinicID == clinicID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r patientRepo) List(_ context.Context, clinicID uuid.UUID, _ *model.PatientFilters) ([]*model.Patient, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Patient
	for _, p := range r.db.Patients {
		if p.ClinicID == clinicID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, int64(len(out)), nil
}

type auditRepo struct{ db *DB }

func (r auditRepo) Create(_ context.Context, l *model.AuditLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return r.db.Err
	}
	cp := *l
	r.db.AuditLogs = append(r.db.AuditLogs, &cp)
	return nil
}

func (r auditRepo) List(_ context.Context, f *model.AuditFilters) ([]*model.AuditLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.AuditLog
	for _, l := range r.db.AuditLogs {
		if f.EntityType != "" && l.EntityType != f.EntityType {
			continue
		}
		if f.Action != "" && l.Action != f.Action {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (r auditRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.AuditLogs[:0]
	var n int64
	for _, l := range r.db.AuditLogs {
		if l.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.db.AuditLogs = kept
	return n, nil
}

// AuditActions lists recorded audit actions in order
func (db *DB) AuditActions() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, len(db.AuditLogs))
	for i, l := range db.AuditLogs {
		out[i] = l.Action
	}
	return out
}

// AuditChanges decodes the changes of the i-th audit entry
func (db *DB) AuditChanges(i int, dest interface{}) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return json.Unmarshal(db.AuditLogs[i].Changes, dest)
}
