package rbac

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantadmin/pkg/httputil"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
	"github.com/platinummonkey/tenantadmin/pkg/modules"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
)

// Handlers provides HTTP handlers for role and permission administration
type Handlers struct {
	store *Store
	cache *RoleCache
}

// NewHandlers creates new RBAC handlers. cache may be nil.
func NewHandlers(store *Store, cache *RoleCache) *Handlers {
	return &Handlers{
		store: store,
		cache: cache,
	}
}

// RegisterRoutes mounts the role routes and declares their permissions
func (h *Handlers) RegisterRoutes(router *mux.Router, routes *RouteTable) {
	view := modules.PermissionName("RoleManagement", "viewRoles")

	routes.Handle(router, http.MethodGet, "/permissions", h.ListPermissions, view)
	routes.Handle(router, http.MethodGet, "/roles", h.ListRoles, view)
	routes.Handle(router, http.MethodGet, "/roles/{id}", h.GetRole, view)
	routes.Handle(router, http.MethodPost, "/roles", h.CreateRole, modules.PermissionName("RoleManagement", "createRole"))
	routes.Handle(router, http.MethodPut, "/roles/{id}", h.UpdateRole, modules.PermissionName("RoleManagement", "editRole"))
	routes.Handle(router, http.MethodPut, "/roles/{id}/permissions", h.SetRolePermissions, modules.PermissionName("RoleManagement", "editRole"))
	routes.Handle(router, http.MethodDelete, "/roles/{id}", h.DeleteRole, modules.PermissionName("RoleManagement", "deleteRole"))
}

type roleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions,omitempty"`
}

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// ListPermissions returns every seeded permission
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	if perms == nil {
		perms = []PermissionRecord{}
	}
	httputil.WriteSuccess(w, perms)
}

// ListRoles returns all roles with their permissions
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	if roles == nil {
		roles = []*Role{}
	}
	httputil.WriteSuccess(w, roles)
}

// GetRole returns a single role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// CreateRole creates a custom role, optionally with an initial permission set
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	if !requireSystemScope(w, r) {
		return
	}
	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	ctx := r.Context()
	role := &Role{Name: req.Name, Description: req.Description}
	if err := h.store.CreateRole(ctx, role); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	if len(req.Permissions) > 0 {
		if err := h.store.SetRolePermissions(ctx, role.ID, req.Permissions); err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		role.Permissions = NewPermissionSet(req.Permissions...).Names()
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"role_id":   role.ID,
		"role_name": role.Name,
	}).Info("role created")

	httputil.WriteCreated(w, role)
}

// UpdateRole renames or redescribes a custom role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	if !requireSystemScope(w, r) {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	ctx := r.Context()
	role := &Role{ID: id, Name: req.Name, Description: req.Description}
	if err := h.store.UpdateRole(ctx, role); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.invalidate(id)

	updated, err := h.store.GetRole(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

// SetRolePermissions replaces the permissions of a custom role
func (h *Handlers) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	if !requireSystemScope(w, r) {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req permissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.store.SetRolePermissions(ctx, id, req.Permissions); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.invalidate(id)

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"role_id":     id,
		"permissions": NewPermissionSet(req.Permissions...).Names(),
	}).Info("role permissions replaced")

	role, err := h.store.GetRole(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole removes an unused custom role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if !requireSystemScope(w, r) {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteRole(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.invalidate(id)

	observability.FromContext(r.Context()).WithField("role_id", id).Info("role deleted")
	httputil.WriteNoContent(w)
}

// requireSystemScope rejects role definition changes from callers working
// inside a customer. Roles are shared by every customer.
func requireSystemScope(w http.ResponseWriter, r *http.Request) bool {
	acting, ok := middleware.ActingFromContext(r.Context())
	if !ok || acting.CustomerID == nil || (acting.User != nil && acting.User.IsSuperadmin) {
		return true
	}
	httputil.WriteErrorMessage(w, http.StatusForbidden, "roles can only be changed in system scope")
	return false
}

func (h *Handlers) invalidate(id int64) {
	if h.cache != nil {
		h.cache.Invalidate(id)
	}
}

func (h *Handlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFound(w, "role not found")
	case errors.Is(err, ErrSystemRole), errors.Is(err, ErrRoleInUse), errors.Is(err, ErrDuplicateName):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrUnknownPermission):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, r, err)
	}
}
