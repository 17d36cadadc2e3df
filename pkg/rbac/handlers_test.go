package rbac

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/contextkeys"
)

func newHandlerRouter(t *testing.T, h *Handlers) (*mux.Router, *RouteTable) {
	t.Helper()
	routes := NewRouteTable(testRegistry(t))
	router := mux.NewRouter()
	h.RegisterRoutes(router, routes)
	return router, routes
}

func doJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_DeclaredPermissions(t *testing.T) {
	_, routes := newHandlerRouter(t, NewHandlers(nil, nil))

	assert.Equal(t, map[string][]string{
		"GET /permissions":            {viewRoles},
		"GET /roles":                  {viewRoles},
		"GET /roles/{id}":             {viewRoles},
		"POST /roles":                 {"RoleManagement:createRole"},
		"PUT /roles/{id}":             {"RoleManagement:editRole"},
		"PUT /roles/{id}/permissions": {"RoleManagement:editRole"},
		"DELETE /roles/{id}":          {"RoleManagement:deleteRole"},
	}, routes.Entries())
}

func TestHandlers_RoleCRUD(t *testing.T) {
	db, store := setupSQLite(t)
	insertRole(t, db, RoleCustomerUser, "Customer User", viewArticles)
	router, _ := newHandlerRouter(t, NewHandlers(store, nil))

	rec := doJSON(router, http.MethodPost, "/roles", map[string]string{"name": "  Auditor ", "description": "Reads"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Auditor", created.Name)
	assert.False(t, created.IsSystem)

	rec = doJSON(router, http.MethodGet, "/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roles))
	assert.Len(t, roles, 2)

	rec = doJSON(router, http.MethodPut, "/roles/"+itoa(created.ID), map[string]string{"name": "Lead Auditor"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Lead Auditor", updated.Name)

	rec = doJSON(router, http.MethodDelete, "/roles/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(router, http.MethodGet, "/roles/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(router, http.MethodGet, "/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var perms []PermissionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perms))
	assert.NotEmpty(t, perms)
}

func TestHandlers_SystemRolesAreImmutable(t *testing.T) {
	db, store := setupSQLite(t)
	insertRole(t, db, RoleCustomerUser, "Customer User", viewArticles)
	router, _ := newHandlerRouter(t, NewHandlers(store, nil))

	rec := doJSON(router, http.MethodPut, "/roles/3", map[string]string{"name": "Hacked"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(router, http.MethodPut, "/roles/3/permissions", map[string][]string{"permissions": {deleteUser}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(router, http.MethodDelete, "/roles/3", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	role, err := store.GetRole(t.Context(), RoleCustomerUser)
	require.NoError(t, err)
	assert.Equal(t, "Customer User", role.Name)
	assert.Equal(t, []string{viewArticles}, role.Permissions)
}

func TestHandlers_Validation(t *testing.T) {
	router, _ := newHandlerRouter(t, NewHandlers(NewStore(nil), nil))

	assert.Equal(t, http.StatusBadRequest, doJSON(router, http.MethodPost, "/roles", map[string]string{"name": " "}).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(router, http.MethodPost, "/roles", map[string]string{"bogus": "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(router, http.MethodGet, "/roles/abc", nil).Code)
}

func TestHandlers_SetRolePermissionsInvalidatesCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	lookup := standardLookup()
	cache := NewRoleCache(lookup, 10, time.Minute, nil)
	_, err = cache.FindRoleByID(t.Context(), editorRoleID)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	router, _ := newHandlerRouter(t, NewHandlers(store, cache))
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM permissions WHERE name = ANY`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(16, editArticles))
	mock.ExpectExec(`DELETE FROM role_permissions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO role_permissions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE roles SET updated_at`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM roles r`).WithArgs(editorRoleID).
		WillReturnRows(sqlmock.NewRows(roleColumns).AddRow(editorRoleID, "Editor", "", now, now, editArticles))

	rec := doJSON(router, http.MethodPut, "/roles/100/permissions", map[string][]string{"permissions": {editArticles}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, cache.Len())

	var role Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.Equal(t, []string{editArticles}, role.Permissions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_ErrorMapping(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	router, _ := newHandlerRouter(t, NewHandlers(NewStore(db), nil))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()
	assert.Equal(t, http.StatusConflict, doJSON(router, http.MethodDelete, "/roles/100", nil).Code)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM permissions WHERE name = ANY`).WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	mock.ExpectRollback()
	rec := doJSON(router, http.MethodPut, "/roles/100/permissions", map[string][]string{"permissions": {"Made:up"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mock.ExpectQuery(`FROM roles r`).WillReturnError(errStoreDown)
	rec = doJSON(router, http.MethodGet, "/roles/100", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), errStoreDown.Error())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_RoleChangesRequireSystemScope(t *testing.T) {
	db, store := setupSQLite(t)
	insertRole(t, db, editorRoleID, "Editor", viewArticles)

	withActor := func(user *auth.User, customerID string) mux.MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				acting := auth.ResolveActingContext(&auth.AuthContext{
					User:   user,
					Claims: &auth.Claims{AppMetadata: auth.AppMetadata{CustomerID: customerID}},
				})
				next.ServeHTTP(w, r.WithContext(contextkeys.WithActing(r.Context(), acting)))
			})
		}
	}

	owner := &auth.User{ID: "owner", Status: auth.StatusActive}
	router, _ := newHandlerRouter(t, NewHandlers(store, nil))
	router.Use(withActor(owner, "C1"))

	requests := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodPost, "/roles", map[string]string{"name": "Escalated"}},
		{http.MethodPut, "/roles/100", map[string]string{"name": "Renamed"}},
		{http.MethodPut, "/roles/100/permissions", map[string][]string{"permissions": {"RoleManagement:editRole"}}},
		{http.MethodDelete, "/roles/100", nil},
	}
	for _, req := range requests {
		rec := doJSON(router, req.method, req.path, req.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", req.method, req.path)
	}
	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/roles/100", nil).Code)

	role, err := store.GetRole(t.Context(), editorRoleID)
	require.NoError(t, err)
	assert.Equal(t, "Editor", role.Name)
	assert.Equal(t, []string{viewArticles}, role.Permissions)

	root := &auth.User{ID: "root", IsSuperadmin: true, Status: auth.StatusActive}
	router, _ = newHandlerRouter(t, NewHandlers(store, nil))
	router.Use(withActor(root, "C1"))
	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodPut, "/roles/100", map[string]string{"name": "Renamed"}).Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
