package model

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	ClinicStatusActive   = "active"
	ClinicStatusInactive = "inactive"
)

// Clinic is the tenant boundary
type Clinic struct {
	Base
	Name    string     `db:"name" json:"name"`
	Slug    string     `db:"slug" json:"slug"`
	Email   *string    `db:"email" json:"email,omitempty"`
	Phone   *string    `db:"phone" json:"phone,omitempty"`
	Address *string    `db:"address" json:"address,omitempty"`
	Status  string     `db:"status" json:"status"`
	OwnerID *uuid.UUID `db:"owner_id" json:"owner_id,omitempty"`
}

type CreateClinicRequest struct {
	Name    string  `json:"name" binding:"required,max=255"`
	Email   *string `json:"email" binding:"omitempty,email"`
	Phone   *string `json:"phone" binding:"omitempty,max=32"`
	Address *string `json:"address"`
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a clinic name into a url-safe slug
func Slugify(name string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}
