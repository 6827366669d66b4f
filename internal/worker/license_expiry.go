package worker

import "context"

type LicenseExpirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// LicenseExpiryJob persists the expired status of licenses past their date
type LicenseExpiryJob struct {
	licenses LicenseExpirer
}

func NewLicenseExpiryJob(licenses LicenseExpirer) *LicenseExpiryJob {
	return &LicenseExpiryJob{licenses: licenses}
}

func (j *LicenseExpiryJob) Name() string { return "license_expiry" }

func (j *LicenseExpiryJob) Run(ctx context.Context) error {
	_, err := j.licenses.ExpireOverdue(ctx)
	return err
}
