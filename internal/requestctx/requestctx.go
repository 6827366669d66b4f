// Package requestctx carries the authenticated user and the resolved clinic
// through one request. Gates write it, handlers read it.
package requestctx

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

const ginKey = "request_ctx"

type ctxKey struct{}

// Context is the per-request state shared by the gate chain
type Context struct {
	RequestID string
	ClientIP  string
	User      *model.User
	ClinicID  uuid.UUID
}

// HasClinic reports whether a clinic was resolved for the request
func (rc *Context) HasClinic() bool {
	return rc.ClinicID != uuid.Nil
}

// From returns the request context, creating it on first use
func From(c *gin.Context) *Context {
	if v, ok := c.Get(ginKey); ok {
		if rc, ok := v.(*Context); ok {
			return rc
		}
	}
	rc := &Context{}
	c.Set(ginKey, rc)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKey{}, rc))
	return rc
}

// FromContext returns the request context stored in ctx, if any
func FromContext(ctx context.Context) (*Context, bool) {
	rc, ok := ctx.Value(ctxKey{}).(*Context)
	return rc, ok
}

// User returns the authenticated user or nil
func User(c *gin.Context) *model.User {
	return From(c).User
}

// SetUser records the authenticated user
func SetUser(c *gin.Context, u *model.User) {
	From(c).User = u
}

// ClinicID returns the resolved clinic or uuid.Nil
func ClinicID(c *gin.Context) uuid.UUID {
	return From(c).ClinicID
}

// SetClinicID records the clinic the request operates on
func SetClinicID(c *gin.Context, id uuid.UUID) {
	From(c).ClinicID = id
}
