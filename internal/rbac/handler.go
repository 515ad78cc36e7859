package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/melodium-shop/melodium/internal/platform/httpx"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Handler manages the access-control admin endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	guard    Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, guard Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, guard: guard}
}

// MountRoutes registers rbac admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermRBACManage))

		r.Get("/roles", h.listRoles)
		r.Post("/roles", h.createRole)
		r.Delete("/roles/{roleID}", h.deleteRole)
		r.Get("/roles/{roleID}/permissions", h.rolePermissions)
		r.Post("/roles/{roleID}/permissions", h.grantPermission)
		r.Delete("/roles/{roleID}/permissions/{permissionID}", h.revokePermission)

		r.Get("/permissions", h.listPermissions)
		r.Post("/permissions", h.createPermission)

		r.Get("/people/{personID}/assignments", h.listAssignments)
		r.Get("/people/{personID}/permissions", h.effectivePermissions)
		r.Post("/people/{personID}/assignments", h.assignRole)
		r.Delete("/people/{personID}/assignments/{roleName}", h.revokeRole)
	})
}

type namedRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=64"`
	Description *string `json:"description" validate:"omitempty,max=255"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req namedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	perms, err := h.service.RolePermissions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req struct {
		PermissionID int64 `json:"permission_id" validate:"required,gt=0"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.GrantPermission(r.Context(), roleID, req.PermissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	permID, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.RevokePermission(r.Context(), roleID, permID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req namedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	assignments, err := h.service.AssignmentsFor(r.Context(), personID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignments)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), personID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	var req struct {
		RoleName  string     `json:"role_name" validate:"required"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var assignedBy *int64
	if actor, ok := shared.PersonIDFromContext(r.Context()); ok {
		assignedBy = &actor
	}
	a, err := h.service.Assign(r.Context(), AssignInput{
		PersonID:   personID,
		RoleName:   req.RoleName,
		AssignedBy: assignedBy,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	personID, ok := pathID(w, r, "personID")
	if !ok {
		return
	}
	if err := h.service.Revoke(r.Context(), personID, chi.URLParam(r, "roleName")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}
