package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/contextkeys"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (l *recordingLogger) Log(_ context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	event.ID = int64(len(l.events) + 1)
	l.events = append(l.events, event)
	return nil
}

func strPtr(s string) *string { return &s }

func newAuditedRouter(sink Logger, acting *auth.ActingContext, status int) *mux.Router {
	m := NewMiddleware(sink, "/api/v1")
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if acting != nil {
				r = r.WithContext(contextkeys.WithActing(r.Context(), *acting))
			}
			next.ServeHTTP(w, r)
		})
	}, m.Handler)

	handler := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(status) }
	api.HandleFunc("/roles", handler).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/roles/{id}", handler).Methods(http.MethodDelete)
	api.HandleFunc("/users/{id}/status", handler).Methods(http.MethodPut)
	return router
}

func TestMiddleware_RecordsMutations(t *testing.T) {
	admin := &auth.User{ID: "admin", IsSuperadmin: true}
	target := &auth.User{ID: "bob", CustomerID: strPtr("C1")}
	impersonating := auth.ResolveActingContext(&auth.AuthContext{User: admin, ImpersonatedUser: target})

	tests := []struct {
		name       string
		method     string
		path       string
		status     int
		wantType   EventType
		wantStatus EventStatus
		wantID     string
	}{
		{"create", http.MethodPost, "/api/v1/roles", http.StatusCreated, "roles.create", EventStatusSuccess, ""},
		{"delete with id", http.MethodDelete, "/api/v1/roles/7", http.StatusNoContent, "roles.delete", EventStatusSuccess, "7"},
		{"nested resource", http.MethodPut, "/api/v1/users/bob/status", http.StatusOK, "users.status.update", EventStatusSuccess, "bob"},
		{"failed mutation", http.MethodPost, "/api/v1/roles", http.StatusConflict, "roles.create", EventStatusFailure, ""},
		{"denied read", http.MethodGet, "/api/v1/roles", http.StatusForbidden, EventTypeDenied, EventStatusDenied, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingLogger{}
			router := newAuditedRouter(sink, &impersonating, tt.status)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			require.Len(t, sink.events, 1)
			e := sink.events[0]
			assert.Equal(t, tt.wantType, e.EventType)
			assert.Equal(t, tt.wantStatus, e.Status)
			assert.Equal(t, tt.wantID, e.ResourceID)
			assert.Equal(t, tt.status, e.StatusCode)
			assert.Equal(t, "bob", e.ActorID)
			assert.Equal(t, "admin", e.RealActorID)
			assert.True(t, e.IsImpersonated())
			require.NotNil(t, e.CustomerID)
			assert.Equal(t, "C1", *e.CustomerID)
			assert.Equal(t, "203.0.113.9", e.IPAddress)
			assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), e.Timestamp)
		})
	}
}

func TestMiddleware_SkipsSuccessfulReads(t *testing.T) {
	sink := &recordingLogger{}
	acting := auth.ResolveActingContext(&auth.AuthContext{User: &auth.User{ID: "u1"}})
	router := newAuditedRouter(sink, &acting, http.StatusOK)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sink.events)
}

func TestMiddleware_SinkFailureDoesNotAffectResponse(t *testing.T) {
	sink := &recordingLogger{err: errors.New("db down")}
	router := newAuditedRouter(sink, nil, http.StatusCreated)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/roles", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestMiddleware_WithoutActingContext(t *testing.T) {
	sink := &recordingLogger{}
	router := newAuditedRouter(sink, nil, http.StatusCreated)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/roles", nil)
	req.RemoteAddr = "192.0.2.4:5555"
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, sink.events, 1)
	assert.Empty(t, sink.events[0].ActorID)
	assert.Nil(t, sink.events[0].CustomerID)
	assert.Equal(t, "192.0.2.4", sink.events[0].IPAddress)
	assert.Equal(t, "/api/v1/roles", sink.events[0].Route)
}

func TestMultiLogger(t *testing.T) {
	first := &recordingLogger{}
	failing := &recordingLogger{err: errors.New("boom")}
	multi := NewMultiLogger(first, failing)

	event := &Event{EventType: "roles.create"}
	err := multi.Log(context.Background(), event)

	assert.EqualError(t, err, "boom")
	assert.Equal(t, int64(1), event.ID)
	require.Len(t, first.events, 1)
	assert.Equal(t, EventType("roles.create"), first.events[0].EventType)
}

type staticVerifier map[string]*auth.Claims

func (v staticVerifier) Verify(_ context.Context, raw string) (*auth.Claims, error) {
	if c, ok := v[raw]; ok {
		return c, nil
	}
	return nil, auth.ErrInvalidToken
}

type staticUsers map[string]*auth.User

func (u staticUsers) FindUserByID(_ context.Context, id string) (*auth.User, error) {
	return u[id], nil
}

func TestMiddleware_RecordsAuthenticationDenials(t *testing.T) {
	sink := &recordingLogger{}
	m := NewMiddleware(sink, "/api/v1")

	verifier := staticVerifier{
		"gone-token":  {AppMetadata: auth.AppMetadata{CustomerID: "C1"}, RegisteredClaims: jwt.RegisteredClaims{Subject: "gone"}},
		"admin-token": {RegisteredClaims: jwt.RegisteredClaims{Subject: "admin"}},
	}
	users := staticUsers{
		"gone":  {ID: "gone", CustomerID: strPtr("C1"), Status: auth.StatusDeactivated},
		"admin": {ID: "admin", IsSuperadmin: true, Status: auth.StatusActive},
	}
	authn := middleware.NewAuthMiddleware(verifier, users, middleware.WithDenialHook(m.RecordDenial))

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(authn.Handler, m.Handler)
	api.HandleFunc("/roles/{id}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }).
		Methods(http.MethodGet)

	serve := func(token string, headers map[string]string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/roles/4", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, serve("gone-token", nil))
	assert.Equal(t, http.StatusForbidden, serve("admin-token", map[string]string{middleware.ImpersonationHeader: "expired"}))
	assert.Equal(t, http.StatusUnauthorized, serve("forged", nil))
	assert.Equal(t, http.StatusOK, serve("admin-token", nil))

	require.Len(t, sink.events, 2, "401s and allowed reads are not recorded")

	inactive := sink.events[0]
	assert.Equal(t, EventTypeDenied, inactive.EventType)
	assert.Equal(t, EventStatusDenied, inactive.Status)
	assert.Equal(t, "gone", inactive.ActorID)
	require.NotNil(t, inactive.CustomerID)
	assert.Equal(t, "C1", *inactive.CustomerID)
	assert.Equal(t, "/api/v1/roles/{id}", inactive.Route)
	assert.Equal(t, "4", inactive.ResourceID)
	assert.Equal(t, auth.ReasonUserInactive, inactive.Message)

	impersonation := sink.events[1]
	assert.Equal(t, "admin", impersonation.ActorID)
	assert.Equal(t, "admin", impersonation.RealActorID)
	assert.Equal(t, auth.ReasonInvalidImpersonation, impersonation.Message)
}
