// Package middleware provides the authentication guard.
//
// # Overview
//
// AuthMiddleware verifies the bearer token, loads the local user row, resolves
// an optional impersonation session and stores both the AuthContext and the
// derived ActingContext in the request context. Permission checks happen
// later in rbac.PermissionMiddleware, which reads the ActingContext.
//
//	authn := middleware.NewAuthMiddleware(verifier, store,
//		middleware.WithImpersonation(sessions),
//		middleware.WithStorePolicy(auth.PolicyDeny),
//	)
//	api.Use(authn.Handler)
//
// # Headers
//
//	Authorization: Bearer <token>    required
//	X-Impersonation-Token: <token>   optional, must belong to the caller
//	X-Customer-Id: <id>              display only, never used for authorization
//
// A valid token whose subject has no local user row is not rejected here; the
// permission guard denies it with "user not found" on guarded routes.
//
// # Related Packages
//
//   - pkg/auth: Token verification and acting context resolution
//   - pkg/rbac: Permission guard
//   - pkg/impersonation: Session store
package middleware
