package users

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/httputil"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
	"github.com/platinummonkey/tenantadmin/pkg/modules"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
	"github.com/platinummonkey/tenantadmin/pkg/rbac"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handlers provides HTTP handlers for user administration
type Handlers struct {
	store *Store
	roles rbac.RoleFinder
}

// NewHandlers creates user handlers. roles is consulted when a caller inside a
// customer assigns a custom role.
func NewHandlers(store *Store, roles rbac.RoleFinder) *Handlers {
	return &Handlers{store: store, roles: roles}
}

// RegisterRoutes mounts the user routes and declares their permissions
func (h *Handlers) RegisterRoutes(router *mux.Router, routes *rbac.RouteTable) {
	perm := func(action string) string { return modules.PermissionName(modules.UserManagement, action) }

	routes.Handle(router, http.MethodGet, "/users", h.List, perm("viewUsers"))
	routes.Handle(router, http.MethodGet, "/users/{id}", h.Get, perm("viewUsers"))
	routes.Handle(router, http.MethodPost, "/users", h.Invite, perm("inviteUser"))
	routes.Handle(router, http.MethodPut, "/users/{id}/role", h.SetRole, perm("editUser"))
	routes.Handle(router, http.MethodPut, "/users/{id}/status", h.SetStatus, perm("editUser"))
}

type inviteRequest struct {
	Email      string  `json:"email"`
	RoleID     *int64  `json:"role_id"`
	CustomerID *string `json:"customer_id"`
}

type roleRequest struct {
	RoleID *int64 `json:"role_id"`
}

type statusRequest struct {
	Status auth.UserStatus `json:"status"`
}

// List returns the users visible to the caller, optionally filtered by ?status=
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	page, ok := httputil.ParsePageOrError(w, r, defaultPageSize, maxPageSize)
	if !ok {
		return
	}

	status := auth.UserStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		httputil.WriteBadRequest(w, "unknown status: "+string(status))
		return
	}

	users, err := h.store.List(r.Context(), Filter{
		CustomerID: acting.CustomerID,
		Status:     status,
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// Get returns a single user
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}

	user, err := h.store.Get(r.Context(), id, acting.CustomerID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// Invite creates a user in the invited state. Callers inside a customer can
// only invite into that customer.
func (h *Handlers) Invite(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !strings.Contains(req.Email, "@") {
		httputil.WriteBadRequest(w, "email is invalid")
		return
	}

	customerID := req.CustomerID
	if acting.CustomerID != nil {
		if customerID != nil && *customerID != *acting.CustomerID {
			httputil.WriteErrorMessage(w, http.StatusForbidden, "cannot invite users into another customer")
			return
		}
		customerID = acting.CustomerID
	}
	if !h.checkAssignableRole(w, r, acting, req.RoleID) {
		return
	}

	user := &auth.User{Email: req.Email, RoleID: req.RoleID, CustomerID: customerID}
	if err := h.store.Invite(r.Context(), user); err != nil {
		writeStoreError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"invited_user_id": user.ID,
		"customer_id":     derefString(user.CustomerID),
	}).Info("user invited")

	httputil.WriteCreated(w, user)
}

// SetRole assigns or clears a user's role
func (h *Handlers) SetRole(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}

	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !h.checkAssignableRole(w, r, acting, req.RoleID) {
		return
	}

	ctx := r.Context()
	if _, err := h.store.Get(ctx, id, acting.CustomerID); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if err := h.store.SetRole(ctx, id, req.RoleID); err != nil {
		writeStoreError(w, r, err)
		return
	}

	user, err := h.store.Get(ctx, id, nil)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// SetStatus moves a user between active, suspended and deactivated. Users
// cannot change their own status.
func (h *Handlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}

	var req statusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	switch req.Status {
	case auth.StatusActive, auth.StatusSuspended, auth.StatusDeactivated:
	default:
		httputil.WriteBadRequest(w, "status must be one of active, suspended, deactivated")
		return
	}
	if acting.RealUser != nil && acting.RealUser.ID == id {
		httputil.WriteBadRequest(w, "cannot change your own status")
		return
	}

	ctx := r.Context()
	user, err := h.store.Get(ctx, id, acting.CustomerID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if user.IsSuperadmin && !isSuperadmin(acting) {
		httputil.WriteErrorMessage(w, http.StatusForbidden, "only superadmins may change a superadmin's status")
		return
	}
	if err := h.store.SetStatus(ctx, id, req.Status); err != nil {
		writeStoreError(w, r, err)
		return
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"target_user_id": id,
		"from":           string(user.Status),
		"to":             string(req.Status),
	}).Info("user status changed")

	user.Status = req.Status
	httputil.WriteSuccess(w, user)
}

// checkAssignableRole keeps callers working inside a customer from handing out
// more than their own role holds. The customer system roles are always assignable.
func (h *Handlers) checkAssignableRole(w http.ResponseWriter, r *http.Request, acting auth.ActingContext, roleID *int64) bool {
	if roleID == nil || acting.CustomerID == nil || isSuperadmin(acting) {
		return true
	}
	switch *roleID {
	case rbac.RoleSystemAdministrator:
		httputil.WriteErrorMessage(w, http.StatusForbidden, "system administrator role can only be assigned in system scope")
		return false
	case rbac.RoleCustomerAdministrator, rbac.RoleCustomerUser:
		return true
	}

	ctx := r.Context()
	target, err := h.roles.FindRoleByID(ctx, *roleID)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return false
	}
	if target == nil {
		httputil.WriteBadRequest(w, "unknown role")
		return false
	}

	held, err := h.heldPermissions(ctx, acting)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return false
	}
	if !target.PermissionSet().SubsetOf(held) {
		httputil.WriteErrorMessage(w, http.StatusForbidden, "cannot assign a role with permissions you do not hold")
		return false
	}
	return true
}

func (h *Handlers) heldPermissions(ctx context.Context, acting auth.ActingContext) (rbac.PermissionSet, error) {
	if acting.User == nil || acting.User.RoleID == nil {
		return rbac.PermissionSet{}, nil
	}
	role, err := h.roles.FindRoleByID(ctx, *acting.User.RoleID)
	if err != nil || role == nil {
		return rbac.PermissionSet{}, err
	}
	return role.PermissionSet(), nil
}

func isSuperadmin(acting auth.ActingContext) bool {
	return acting.User != nil && acting.User.IsSuperadmin
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrDuplicateEmail):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrInvalidReference):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, r, err)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
