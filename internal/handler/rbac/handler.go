package rbac

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
	"github.com/jwalitptl/clinic-api/internal/service/rbac"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	svc *rbac.Service
}

func NewHandler(svc *rbac.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts role and permission administration. Roles are shared
// by every clinic, so changing the catalog needs a superadmin; role.manage
// only covers assignments inside a clinic. The clinic used by the read check
// comes from the X-Clinic-ID header or the session.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, g handler.Gates) {
	read := g.Permission.RequirePermission(model.PermRoleRead)
	manage := g.Permission.RequireSuperAdmin()

	rbac := r.Group("/rbac")
	{
		roles := rbac.Group("/roles")
		{
			roles.GET("", read, h.ListRoles)
			roles.POST("", manage, h.CreateRole)
			roles.GET("/:id", read, h.GetRole)
			roles.PUT("/:id", manage, h.UpdateRole)
			roles.DELETE("/:id", manage, h.DeleteRole)
			roles.PUT("/:id/permissions", manage, h.SyncRolePermissions)
		}
		rbac.GET("/permissions", read, h.ListPermissions)
	}
}

// RegisterClinicRoutes mounts the assignment endpoints inside the clinic group
func (h *Handler) RegisterClinicRoutes(clinic *gin.RouterGroup, g handler.Gates) {
	users := clinic.Group("/users")
	{
		users.GET("/:user_id/role", g.Permission.RequirePermission(model.PermRoleRead), h.GetUserRole)
		users.PUT("/:user_id/role", g.Permission.RequirePermission(model.PermRoleManage), h.AssignRole)
		users.DELETE("/:user_id/role", g.Permission.RequirePermission(model.PermRoleManage), h.RemoveRole)
	}
}

type createRoleRequest struct {
	Name        string   `json:"name" binding:"required,max=64"`
	DisplayName string   `json:"display_name" binding:"required,max=255"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	DisplayName string `json:"display_name" binding:"max=255"`
	Description string `json:"description"`
}

type permissionsRequest struct {
	Permissions []string `json:"permissions" binding:"required"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id" binding:"required,uuid"`
}

type roleResponse struct {
	*model.Role
	Permissions []model.PermissionSlug `json:"permissions"`
}

func parseSlugs(raw []string) ([]model.PermissionSlug, error) {
	out := make([]model.PermissionSlug, 0, len(raw))
	for _, s := range raw {
		p, err := model.ParsePermission(s)
		if err != nil {
			return nil, apperrors.Validation(err.Error(), err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.svc.ListRoles(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, roles)
}

func (h *Handler) CreateRole(c *gin.Context) {
	var req createRoleRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	perms, err := parseSlugs(req.Permissions)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	role := &model.Role{
		Name:        model.RoleName(req.Name),
		DisplayName: req.DisplayName,
		Description: req.Description,
	}
	if err := h.svc.CreateRole(c.Request.Context(), role, perms); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, roleResponse{Role: role, Permissions: perms})
}

func (h *Handler) GetRole(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	role, perms, err := h.svc.GetRole(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, roleResponse{Role: role, Permissions: perms})
}

func (h *Handler) UpdateRole(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req updateRoleRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	role, err := h.svc.UpdateRole(c.Request.Context(), id, req.DisplayName, req.Description)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, role)
}

func (h *Handler) DeleteRole(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteRole(c.Request.Context(), id); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"deleted": id})
}

func (h *Handler) SyncRolePermissions(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req permissionsRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	perms, err := parseSlugs(req.Permissions)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	if err := h.svc.SyncRolePermissions(c.Request.Context(), id, perms); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"role_id": id, "permissions": perms})
}

func (h *Handler) ListPermissions(c *gin.Context) {
	perms, err := h.svc.ListPermissions(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, perms)
}

func (h *Handler) GetUserRole(c *gin.Context) {
	userID, ok := handler.ParamUUID(c, "user_id")
	if !ok {
		return
	}

	role, found := h.svc.RoleInClinic(c.Request.Context(), userID, requestctx.ClinicID(c))
	if !found {
		handler.Fail(c, rbac.ErrRoleNotFound)
		return
	}
	httputil.RespondWithSuccess(c, role)
}

// AssignRole sets the role of a user in the clinic. Only a superadmin may
// hand out the superadmin role or replace it.
func (h *Handler) AssignRole(c *gin.Context) {
	userID, ok := handler.ParamUUID(c, "user_id")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	roleID := uuid.MustParse(req.RoleID)
	ctx := c.Request.Context()
	caller := requestctx.User(c)

	role, _, err := h.svc.GetRole(ctx, roleID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if role.Name == model.RoleSuperAdmin && !h.svc.IsSuperAdmin(ctx, caller) {
		log.Warn().
			Str("user_id", caller.ID.String()).
			Str("target_user_id", userID.String()).
			Msg("superadmin grant refused")
		httputil.RespondWithError(c, apperrors.Forbidden(
			apperrors.CodeInsufficientPermissions, "only a superadmin can grant the superadmin role",
		))
		return
	}

	clinicID := requestctx.ClinicID(c)
	if !h.canChangeAssignment(c, caller, userID, clinicID) {
		return
	}
	if err := h.svc.AssignRoleInClinic(ctx, userID, clinicID, roleID); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, model.UserClinicRole{
		UserID:   userID,
		ClinicID: clinicID,
		RoleID:   role.ID,
		RoleName: role.Name,
	})
}

func (h *Handler) RemoveRole(c *gin.Context) {
	userID, ok := handler.ParamUUID(c, "user_id")
	if !ok {
		return
	}
	clinicID := requestctx.ClinicID(c)
	if !h.canChangeAssignment(c, requestctx.User(c), userID, clinicID) {
		return
	}

	if err := h.svc.RemoveRoleFromClinic(c.Request.Context(), userID, clinicID); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"removed": userID})
}

// canChangeAssignment refuses to let a non-superadmin overwrite or remove the
// assignment of a user who holds superadmin in the clinic
func (h *Handler) canChangeAssignment(c *gin.Context, caller *model.User, target, clinicID uuid.UUID) bool {
	ctx := c.Request.Context()
	current, found := h.svc.RoleInClinic(ctx, target, clinicID)
	if !found || current.Name != model.RoleSuperAdmin || h.svc.IsSuperAdmin(ctx, caller) {
		return true
	}
	log.Warn().
		Str("user_id", caller.ID.String()).
		Str("target_user_id", target.String()).
		Str("clinic_id", clinicID.String()).
		Msg("superadmin demotion refused")
	httputil.RespondWithError(c, apperrors.Forbidden(
		apperrors.CodeInsufficientPermissions, "only a superadmin can change a superadmin's role",
	))
	return false
}
