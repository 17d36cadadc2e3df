package articles

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantadmin/pkg/httputil"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
	"github.com/platinummonkey/tenantadmin/pkg/modules"
	"github.com/platinummonkey/tenantadmin/pkg/rbac"
)

const maxTitleLength = 500

// Handlers provides HTTP handlers for articles
type Handlers struct {
	store *Store
}

// NewHandlers creates article handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes mounts the article routes and declares their permissions
func (h *Handlers) RegisterRoutes(router *mux.Router, routes *rbac.RouteTable) {
	perm := func(action string) string { return modules.PermissionName("Documents", action) }

	routes.Handle(router, http.MethodGet, "/articles", h.List, perm("viewArticles"))
	routes.Handle(router, http.MethodGet, "/articles/{id}", h.Get, perm("viewArticles"))
	routes.Handle(router, http.MethodPost, "/articles", h.Create, perm("createArticles"))
	routes.Handle(router, http.MethodPut, "/articles/{id}", h.Update, perm("editArticles"))
	routes.Handle(router, http.MethodDelete, "/articles/{id}", h.Delete, perm("deleteArticles"))
}

type articleRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (req *articleRequest) validate(w http.ResponseWriter) bool {
	req.Title = strings.TrimSpace(req.Title)
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return false
	}
	if len(req.Title) > maxTitleLength {
		httputil.WriteBadRequest(w, "title is too long")
		return false
	}
	return true
}

// List returns articles of the acting customer
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	page, ok := httputil.ParsePageOrError(w, r, 20, 100)
	if !ok {
		return
	}

	articles, err := h.store.List(r.Context(), acting.CustomerID, page.Limit, page.Offset)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, articles)
}

// Get returns a single article
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}

	article, err := h.store.Get(r.Context(), acting.CustomerID, id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, article)
}

// Create adds an article to the acting customer. Callers in system scope
// must act inside a customer first.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	if acting.CustomerID == nil {
		httputil.WriteBadRequest(w, "articles belong to a customer; no acting customer")
		return
	}

	var req articleRequest
	if !httputil.ParseJSONOrError(w, r, &req) || !req.validate(w) {
		return
	}

	article := &Article{
		CustomerID: *acting.CustomerID,
		Title:      req.Title,
		Body:       req.Body,
	}
	if acting.User != nil {
		author := acting.User.ID
		article.AuthorID = &author
	}
	if err := h.store.Create(r.Context(), article); err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteCreated(w, article)
}

// Update replaces an article's title and body
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}

	var req articleRequest
	if !httputil.ParseJSONOrError(w, r, &req) || !req.validate(w) {
		return
	}

	article, err := h.store.Update(r.Context(), acting.CustomerID, id, req.Title, req.Body)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, article)
}

// Delete removes an article
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	id, ok := httputil.PathString(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), acting.CustomerID, id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, err.Error())
		return
	}
	httputil.WriteInternalError(w, r, err)
}
