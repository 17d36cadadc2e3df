package impersonation

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantadmin/pkg/httputil"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
	"github.com/platinummonkey/tenantadmin/pkg/modules"
	"github.com/platinummonkey/tenantadmin/pkg/rbac"
)

// Handlers exposes impersonation over HTTP
type Handlers struct {
	service *Service
}

// NewHandlers creates impersonation handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes mounts the impersonation routes. Stopping needs no
// permission so an admin can always leave a session.
func (h *Handlers) RegisterRoutes(router *mux.Router, routes *rbac.RouteTable) {
	routes.Handle(router, http.MethodPost, "/impersonation", h.Start, modules.PermissionName(modules.UserManagement, "impersonateUser"))
	routes.Handle(router, http.MethodGet, "/impersonation", h.Current)
	routes.Handle(router, http.MethodDelete, "/impersonation", h.Stop)
}

type startRequest struct {
	UserID string `json:"user_id"`
}

// Start opens a session and returns its token
func (h *Handlers) Start(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}

	var req startRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	session, err := h.service.Start(r.Context(), acting, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, session)
}

// Current returns the caller's active session
func (h *Handlers) Current(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}

	session, err := h.service.Active(r.Context(), acting)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	if session == nil {
		httputil.WriteNotFound(w, ErrNoSession.Error())
		return
	}
	httputil.WriteSuccess(w, session)
}

// Stop ends the caller's session
func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}

	if err := h.service.Stop(r.Context(), acting); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSelfImpersonation):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, ErrTargetNotFound), errors.Is(err, ErrNoSession):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrSuperadminTarget), errors.Is(err, ErrOutsideCustomer), errors.Is(err, ErrUnknownActor):
		httputil.WriteErrorMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrTargetInactive), errors.Is(err, ErrAlreadyImpersonating):
		httputil.WriteConflict(w, err.Error())
	default:
		httputil.WriteInternalError(w, r, err)
	}
}
