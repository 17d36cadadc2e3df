package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/httputil"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
	"github.com/platinummonkey/tenantadmin/pkg/rbac"
)

func (s *Server) registerSystemRoutes(router *mux.Router) {
	s.routes.Handle(router, http.MethodGet, "/me", s.me)
	s.routes.Handle(router, http.MethodGet, "/modules", s.listModules)
	s.routes.Handle(router, http.MethodGet, "/system/status", s.systemStatus, rbac.Wildcard)
}

// MeResponse describes the caller as the guards see them
type MeResponse struct {
	auth.ActingContext
	Role *rbac.Role `json:"role,omitempty"`
}

// me echoes the acting context with the effective user's role
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	acting, ok := middleware.RequireActingContext(w, r)
	if !ok {
		return
	}
	if acting.User == nil {
		httputil.WriteAccessError(w, r, auth.Forbidden(auth.ReasonUserNotFound))
		return
	}

	resp := MeResponse{ActingContext: acting}
	if acting.User.RoleID != nil {
		role, err := s.roles.FindRoleByID(r.Context(), *acting.User.RoleID)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("role lookup failed for /me")
		}
		resp.Role = role
	}
	httputil.WriteSuccess(w, resp)
}

// listModules returns the enabled system modules
func (s *Server) listModules(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.registry.ListEnabled())
}

// StatusResponse is the system-admin view of the running service
type StatusResponse struct {
	Version          string   `json:"version"`
	Uptime           string   `json:"uptime"`
	Routes           []string `json:"routes"`
	Rules            []string `json:"rules"`
	StoreErrorPolicy string   `json:"store_error_policy"`
	OpenConnections  int      `json:"open_connections"`
	InUseConnections int      `json:"in_use_connections"`
}

func (s *Server) systemStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.db.Stats()
	httputil.WriteSuccess(w, StatusResponse{
		Version:          s.version,
		Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
		Routes:           s.routes.Keys(),
		Rules:            s.guard.RuleNames(),
		StoreErrorPolicy: string(s.guard.Policy()),
		OpenConnections:  stats.OpenConnections,
		InUseConnections: stats.InUse,
	})
}
