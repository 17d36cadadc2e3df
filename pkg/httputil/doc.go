// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteBadRequest(w, "name is required")
//
// Authentication and authorization failures are written with WriteAccessError,
// which maps auth.AccessError kinds to 401, 403 and 503 and includes the
// missing permission names when the guard reports them.
//
// # Request Parsing
//
//	var req createRoleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	page, ok := httputil.ParsePageOrError(w, r, 50, 200)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//	)
//
// # Related Packages
//
//   - pkg/middleware: Authentication guard
//   - pkg/rbac: Permission guard
package httputil
