package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindLicenseRestriction
	KindTrialExpired
	KindValidation
	KindNotFound
	KindConflict
	KindRateLimited
)

// Error codes returned in the JSON envelope
const (
	CodeUnauthenticated         = "UNAUTHENTICATED"
	CodeAccountDeactivated      = "ACCOUNT_DEACTIVATED"
	CodeNoClinicAccess          = "NO_CLINIC_ACCESS"
	CodeClinicAccessDenied      = "CLINIC_ACCESS_DENIED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeLicenseValidationFailed = "LICENSE_VALIDATION_FAILED"
	CodeFeatureNotAvailable     = "FEATURE_NOT_AVAILABLE"
	CodeUsageLimitExceeded      = "USAGE_LIMIT_EXCEEDED"
	CodeTrialExpired            = "TRIAL_EXPIRED"
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeNotFound                = "NOT_FOUND"
	CodeConflict                = "CONFLICT"
	CodeInternal                = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to an HTTP status
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization, KindLicenseRestriction, KindTrialExpired:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, code, message string, err error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Err: err}
}

func Unauthenticated(message string) *AppError {
	return New(KindAuthentication, CodeUnauthenticated, message, nil)
}

func AccountDeactivated() *AppError {
	return New(KindAuthentication, CodeAccountDeactivated, "your account has been deactivated", nil)
}

func Forbidden(code, message string) *AppError {
	return New(KindAuthorization, code, message, nil)
}

func LicenseRestriction(code, message string) *AppError {
	return New(KindLicenseRestriction, code, message, nil)
}

func TrialExpired() *AppError {
	return New(KindTrialExpired, CodeTrialExpired, "your trial period has expired, please activate a license", nil)
}

func Validation(message string, err error) *AppError {
	return New(KindValidation, CodeValidationFailed, message, err)
}

func NotFound(resource string, err error) *AppError {
	return New(KindNotFound, CodeNotFound, fmt.Sprintf("%s not found", resource), err)
}

func Conflict(message string, err error) *AppError {
	return New(KindConflict, CodeConflict, message, err)
}

func Internal(err error) *AppError {
	return New(KindInternal, CodeInternal, "internal server error", err)
}

// As extracts an AppError from err, wrapping unknown errors as internal
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
