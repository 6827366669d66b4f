// Package handler holds the helpers shared by the HTTP handlers: request
// binding, path parameters and the mapping of service errors onto the API
// error envelope.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/auth"
	"github.com/jwalitptl/clinic-api/internal/service/clinic"
	"github.com/jwalitptl/clinic-api/internal/service/license"
	"github.com/jwalitptl/clinic-api/internal/service/patient"
	"github.com/jwalitptl/clinic-api/internal/service/rbac"
	"github.com/jwalitptl/clinic-api/internal/service/setting"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

// Gates are the per-route middleware handlers attach when registering routes
type Gates struct {
	Permission *middleware.PermissionMiddleware
	License    *middleware.LicenseMiddleware
}

// BindJSON decodes the JSON body into dst and answers 422 on failure
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}

// Bind decodes a JSON or form body into dst depending on the content type
func Bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBind(dst); err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}

// BindQuery decodes the query string into dst
func BindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}

func respondBindError(c *gin.Context, err error) {
	fields := validator.FieldErrors(err)
	message := "invalid request body"
	if len(fields) > 0 {
		message = validator.Summary(fields)
	}
	env := httputil.NewErrorEnvelope(apperrors.CodeValidationFailed, message)
	if len(fields) > 0 {
		env.Details = fields
	}
	c.JSON(http.StatusUnprocessableEntity, env)
}

// ParamUUID parses a path parameter, answering 422 when it is malformed
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.Validation("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// Fail renders err as the error envelope
func Fail(c *gin.Context, err error) {
	httputil.RespondWithError(c, AppError(err))
}

// AppError maps service errors onto application errors
func AppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperrors.Unauthenticated("invalid email or password")
	case errors.Is(err, auth.ErrAccountDeactivated):
		return apperrors.AccountDeactivated()
	case errors.Is(err, auth.ErrEmailTaken):
		return apperrors.Conflict("email is already registered", err)
	case errors.Is(err, auth.ErrAdminRoleMissing):
		return apperrors.Internal(err)

	case errors.Is(err, rbac.ErrRoleNotFound):
		return apperrors.NotFound("role", err)
	case errors.Is(err, rbac.ErrSystemRoleImmutable):
		return apperrors.Conflict("system roles cannot be modified or deleted", err)
	case errors.Is(err, rbac.ErrInvalidRole):
		return apperrors.Validation(err.Error(), err)

	case errors.Is(err, license.ErrLicenseNotFound):
		return apperrors.NotFound("license", err)
	case errors.Is(err, license.ErrLicenseInactive), errors.Is(err, license.ErrLicenseExpired):
		return apperrors.New(apperrors.KindLicenseRestriction, apperrors.CodeLicenseValidationFailed, err.Error(), err)
	case errors.Is(err, license.ErrInvalidTransition):
		return apperrors.Conflict(err.Error(), err)
	case errors.Is(err, license.ErrUnknownUsageKind):
		return apperrors.Validation(err.Error(), err)

	case errors.Is(err, setting.ErrSettingNotFound):
		return apperrors.NotFound("setting", err)
	case errors.Is(err, setting.ErrInvalidKey), errors.Is(err, setting.ErrInvalidValue):
		return apperrors.Validation(err.Error(), err)

	case errors.Is(err, clinic.ErrClinicNotFound):
		return apperrors.NotFound("clinic", err)
	case errors.Is(err, patient.ErrPatientNotFound):
		return apperrors.NotFound("patient", err)
	case errors.Is(err, patient.ErrMissingField):
		return apperrors.Validation(err.Error(), err)

	case errors.Is(err, model.ErrTrialAlreadyStarted):
		return apperrors.Conflict(err.Error(), err)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("resource", err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.Conflict("resource already exists", err)
	}
	return apperrors.Internal(err)
}
