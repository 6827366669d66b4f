package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type SettingType string

const (
	SettingTypeString  SettingType = "string"
	SettingTypeBoolean SettingType = "boolean"
	SettingTypeInteger SettingType = "integer"
	SettingTypeJSON    SettingType = "json"
)

// Settings read by the services. Clinics that never set them get the
// defaults the services pass in.
const (
	SettingClinicTimezone        = "clinic_timezone"
	SettingPatientsPerPage       = "patients_per_page"
	SettingPatientRequiredFields = "patient_required_fields"
	SettingAuditPatientReads     = "audit_patient_reads"
)

func (t SettingType) Valid() bool {
	switch t {
	case SettingTypeString, SettingTypeBoolean, SettingTypeInteger, SettingTypeJSON:
		return true
	}
	return false
}

// Setting is a clinic scoped key/value row. Value is stored as text and
// coerced on read according to Type.
type Setting struct {
	Base
	ClinicID uuid.UUID   `db:"clinic_id" json:"clinic_id"`
	Key      string      `db:"key" json:"key"`
	Value    string      `db:"value" json:"value"`
	Type     SettingType `db:"type" json:"type"`
	Group    string      `db:"group_name" json:"group"`
	IsPublic bool        `db:"is_public" json:"is_public"`
}

// Typed returns the value coerced to its declared type
func (s *Setting) Typed() (interface{}, error) {
	switch s.Type {
	case SettingTypeBoolean:
		return s.AsBool()
	case SettingTypeInteger:
		return s.AsInt()
	case SettingTypeJSON:
		var v interface{}
		if err := s.AsJSON(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return s.Value, nil
	}
}

func (s *Setting) AsBool() (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s.Value)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("setting %s: %q is not a boolean", s.Key, s.Value)
}

func (s *Setting) AsInt() (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s.Value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s: %w", s.Key, err)
	}
	return v, nil
}

func (s *Setting) AsJSON(dest interface{}) error {
	if err := json.Unmarshal([]byte(s.Value), dest); err != nil {
		return fmt.Errorf("setting %s: %w", s.Key, err)
	}
	return nil
}

// EncodeSettingValue converts an arbitrary value to its stored text form and
// infers the type when none is given.
func EncodeSettingValue(v interface{}, t SettingType) (string, SettingType, error) {
	switch val := v.(type) {
	case nil:
		if t == "" {
			t = SettingTypeString
		}
		return "", t, nil
	case string:
		if t == "" {
			t = SettingTypeString
		}
		return val, t, nil
	case bool:
		if t == "" {
			t = SettingTypeBoolean
		}
		return strconv.FormatBool(val), t, nil
	case int:
		if t == "" {
			t = SettingTypeInteger
		}
		return strconv.Itoa(val), t, nil
	case int64:
		if t == "" {
			t = SettingTypeInteger
		}
		return strconv.FormatInt(val, 10), t, nil
	case float64:
		if val == float64(int64(val)) && (t == "" || t == SettingTypeInteger) {
			return strconv.FormatInt(int64(val), 10), SettingTypeInteger, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("encode setting value: %w", err)
	}
	if t == "" {
		t = SettingTypeJSON
	}
	return string(b), t, nil
}

type SetSettingRequest struct {
	Value    interface{} `json:"value"`
	Type     SettingType `json:"type" binding:"omitempty,oneof=string boolean integer json"`
	Group    string      `json:"group" binding:"omitempty,max=64"`
	IsPublic bool        `json:"is_public"`
}
