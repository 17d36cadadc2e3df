package rbac

import (
	"net/http"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/httputil"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
)

// PermissionMiddleware enforces the route table with the guard. It must run
// after route matching (mux Router.Use) and after the authentication guard.
type PermissionMiddleware struct {
	guard  *Guard
	routes *RouteTable
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(guard *Guard, routes *RouteTable) *PermissionMiddleware {
	return &PermissionMiddleware{
		guard:  guard,
		routes: routes,
	}
}

// Handler checks the matched route's declared permissions before calling next
func (pm *PermissionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required := pm.routes.Required(r)
		if required.Empty() {
			next.ServeHTTP(w, r)
			return
		}

		acting, ok := middleware.GetActingContext(r)
		if !ok {
			httputil.WriteAccessError(w, r, auth.Unauthenticated("authentication required", nil))
			return
		}

		if err := pm.guard.Check(r.Context(), acting, required); err != nil {
			httputil.WriteAccessError(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}
