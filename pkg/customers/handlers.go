package customers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantadmin/pkg/httputil"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
	"github.com/platinummonkey/tenantadmin/pkg/modules"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
	"github.com/platinummonkey/tenantadmin/pkg/rbac"
)

const module = "CustomerManagement"

// Handlers provides HTTP handlers for customer administration
type Handlers struct {
	store *Store
}

// NewHandlers creates customer handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes mounts the customer routes and declares their permissions
func (h *Handlers) RegisterRoutes(router *mux.Router, routes *rbac.RouteTable) {
	routes.Handle(router, http.MethodGet, "/customers", h.List, modules.PermissionName(module, "viewCustomers"))
	routes.Handle(router, http.MethodGet, "/customers/{id}", h.Get, modules.PermissionName(module, "viewCustomers"))
	routes.Handle(router, http.MethodPost, "/customers", h.Create, modules.PermissionName(module, "createCustomer"))
	routes.Handle(router, http.MethodPut, "/customers/{id}/owner", h.TransferOwner, modules.PermissionName(module, "editCustomer"))
}

type createRequest struct {
	Name    string  `json:"name"`
	OwnerID *string `json:"owner_id"`
}

type ownerRequest struct {
	OwnerID string `json:"owner_id"`
}

// List returns every customer in system scope, or just the acting customer
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	page, ok := httputil.ParsePageOrError(w, r, 50, 200)
	if !ok {
		return
	}

	customers, err := h.store.List(r.Context(), acting.CustomerID, page.Limit, page.Offset)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, customers)
}

// Get returns a customer visible to the caller
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}
	if acting.CustomerID != nil && *acting.CustomerID != id {
		httputil.WriteNotFound(w, ErrNotFound.Error())
		return
	}

	customer, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, customer)
}

// Create adds a customer. Only callers in system scope can create customers.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	if acting.CustomerID != nil {
		httputil.WriteErrorMessage(w, http.StatusForbidden, "customers can only be created in system scope")
		return
	}

	var req createRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	customer, err := h.store.Create(r.Context(), req.Name, req.OwnerID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithField("customer_id", customer.ID).Info("customer created")
	httputil.WriteCreated(w, customer)
}

// TransferOwner changes the owner of a customer
func (h *Handlers) TransferOwner(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}
	if acting.CustomerID != nil && *acting.CustomerID != id {
		httputil.WriteNotFound(w, ErrNotFound.Error())
		return
	}

	var req ownerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OwnerID, "owner_id") {
		return
	}

	customer, err := h.store.TransferOwner(r.Context(), id, req.OwnerID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"customer_id": id,
		"owner_id":    req.OwnerID,
	}).Info("customer owner transferred")
	httputil.WriteSuccess(w, customer)
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrOwnerNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrOwnerOutsideCustomer):
		httputil.WriteConflict(w, err.Error())
	default:
		httputil.WriteInternalError(w, r, err)
	}
}
