package httputil

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

// FlashCookie carries the denial message across a web redirect
const FlashCookie = "flash_error"

// Response wraps all successful API responses
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorEnvelope is the uniform error body returned by every gate and handler
type ErrorEnvelope struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	ErrorCode string      `json:"error_code"`
	Timestamp string      `json:"timestamp"`
	Details   interface{} `json:"details,omitempty"`
}

// NewErrorEnvelope builds the error body with the current timestamp
func NewErrorEnvelope(code, message string) ErrorEnvelope {
	return ErrorEnvelope{
		Success:   false,
		Message:   message,
		ErrorCode: code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// RespondWithSuccess sends a 200 success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// RespondWithCreated sends a 201 success response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// RespondWithError sends the error envelope for err
func RespondWithError(c *gin.Context, err error) {
	appErr := apperrors.As(err)
	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Str("request_id", c.GetString("request_id")).
			Msg("request failed")
	}
	c.JSON(status, NewErrorEnvelope(appErr.Code, appErr.Message))
}

// AbortWithError aborts the chain with the envelope for err
func AbortWithError(c *gin.Context, err error) {
	RespondWithError(c, err)
	c.Abort()
}

// AbortWithDenial terminates a gated request. JSON clients get the envelope,
// browser requests are redirected to redirectTo with a flash cookie.
func AbortWithDenial(c *gin.Context, err *apperrors.AppError, redirectTo string) {
	if redirectTo == "" || WantsJSON(c) {
		c.AbortWithStatusJSON(err.StatusCode(), NewErrorEnvelope(err.Code, err.Message))
		return
	}
	c.SetCookie(FlashCookie, url.QueryEscape(err.Message), 60, "/", "", false, true)
	c.Redirect(http.StatusFound, redirectTo)
	c.Abort()
}

// WantsJSON reports whether the request expects a JSON answer
func WantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return true
	}
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	accept := c.GetHeader("Accept")
	if strings.Contains(accept, "application/json") || strings.Contains(accept, "+json") {
		return true
	}
	return strings.HasPrefix(c.ContentType(), "application/json")
}

// TakeFlash returns the flash message left by a denial redirect and clears it
func TakeFlash(c *gin.Context) string {
	raw, err := c.Cookie(FlashCookie)
	if err != nil || raw == "" {
		return ""
	}
	c.SetCookie(FlashCookie, "", -1, "/", "", false, true)
	msg, err := url.QueryUnescape(raw)
	if err != nil {
		return ""
	}
	return msg
}
