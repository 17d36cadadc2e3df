package audit

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantadmin/pkg/httputil"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
	"github.com/platinummonkey/tenantadmin/pkg/rbac"
)

// Handlers provides HTTP handlers for the audit log API
type Handlers struct {
	store *Store
}

// NewHandlers creates new audit handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers audit log routes. Reading the trail is reserved
// for system-scope roles and superadmins.
func (h *Handlers) RegisterRoutes(router *mux.Router, routes *rbac.RouteTable) {
	routes.Handle(router, http.MethodGet, "/audit/events", h.ListEvents, rbac.Wildcard)
	routes.Handle(router, http.MethodGet, "/audit/events/{id}", h.GetEvent, rbac.Wildcard)
}

// ListEvents handles GET /audit/events. A caller acting inside a customer
// only sees that customer's events.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	page, ok := httputil.ParsePageOrError(w, r, defaultLimit, maxLimit)
	if !ok {
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter.Limit = page.Limit
	filter.Offset = page.Offset
	filter.CustomerID = acting.CustomerID

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetEvent handles GET /audit/events/{id}
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	event, err := h.store.Get(r.Context(), id, acting.CustomerID)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "audit event not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, event)
}

func parseFilter(r *http.Request) (SearchFilter, error) {
	q := r.URL.Query()
	filter := SearchFilter{
		ActorID:      q.Get("actor_id"),
		Status:       EventStatus(q.Get("status")),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
	}

	switch filter.Status {
	case "", EventStatusSuccess, EventStatusFailure, EventStatusDenied:
	default:
		return SearchFilter{}, errors.New("unknown status: " + string(filter.Status))
	}

	if types := q.Get("event_type"); types != "" {
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.EventTypes = append(filter.EventTypes, EventType(t))
			}
		}
	}

	for key, dst := range map[string]**time.Time{"start_time": &filter.StartTime, "end_time": &filter.EndTime} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return SearchFilter{}, errors.New(key + " must be RFC3339")
		}
		*dst = &t
	}

	return filter, nil
}
