package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/contextkeys"
	"github.com/platinummonkey/tenantadmin/pkg/httputil"
)

// withActing stands in for the authentication guard
func withActing(acting *auth.ActingContext) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if acting != nil {
				r = r.WithContext(contextkeys.WithActing(r.Context(), *acting))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newGuardedRouter(t *testing.T, lookup *fakeLookup, acting *auth.ActingContext) *mux.Router {
	t.Helper()

	routes := NewRouteTable(testRegistry(t))
	guard := newTestGuard(t, lookup)
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	ok := func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	}
	routes.Handle(api, http.MethodGet, "/me", ok)
	routes.Handle(api, http.MethodGet, "/articles", ok, viewArticles)
	routes.Handle(api, http.MethodPut, "/articles/{id}", ok, editArticles)

	api.Use(withActing(acting))
	api.Use(NewPermissionMiddleware(guard, routes).Handler)
	return router
}

func TestPermissionMiddleware(t *testing.T) {
	editor := actingFor(&auth.User{ID: regularUserID, RoleID: int64Ptr(editorRoleID)}, "")

	tests := []struct {
		name       string
		acting     *auth.ActingContext
		method     string
		path       string
		wantStatus int
		wantReason string
	}{
		{name: "undeclared permissions pass without identity", method: http.MethodGet, path: "/api/v1/me", wantStatus: http.StatusOK},
		{name: "guarded route without identity", method: http.MethodGet, path: "/api/v1/articles", wantStatus: http.StatusUnauthorized},
		{name: "editor may view", acting: &editor, method: http.MethodGet, path: "/api/v1/articles", wantStatus: http.StatusOK},
		{name: "editor may not edit", acting: &editor, method: http.MethodPut, path: "/api/v1/articles/7", wantStatus: http.StatusForbidden, wantReason: auth.ReasonMissingPermissions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newGuardedRouter(t, standardLookup(), tt.acting)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantReason != "" {
				var body httputil.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantReason, body.Reason)
				assert.Equal(t, []string{editArticles}, body.Missing)
			}
		})
	}
}

func TestPermissionMiddleware_StoreUnavailable(t *testing.T) {
	lookup := standardLookup()
	lookup.roleErr = errStoreDown

	routes := NewRouteTable(testRegistry(t))
	router := mux.NewRouter()
	routes.Handle(router, http.MethodGet, "/articles", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}, viewArticles)

	acting := actingFor(&auth.User{ID: regularUserID, RoleID: int64Ptr(editorRoleID)}, "")
	router.Use(withActing(&acting))
	router.Use(NewPermissionMiddleware(newTestGuard(t, lookup, WithStoreErrorPolicy(auth.PolicyUnavailable)), routes).Handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), errStoreDown.Error())
}
