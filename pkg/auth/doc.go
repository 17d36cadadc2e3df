// Package auth provides identity types, bearer token verification and the
// acting-context resolution used by every authorization decision.
//
// # Overview
//
// Tokens are issued by the managed auth service, never by this process. The
// package only verifies them and turns their claims into request-scoped
// identity:
//
//	AuthContext   - who authenticated (User, verified Claims, impersonated user)
//	ActingContext - whose permissions apply (effective user and customer)
//
// # Token Verification
//
// Two verifiers implement TokenVerifier:
//
//	HMACVerifier - HS256 tokens signed with the project JWT secret
//	OIDCVerifier - asymmetric tokens checked against the issuer's JWKS
//
//	verifier := auth.NewHMACVerifier(auth.HMACConfig{Secret: secret, Audience: "authenticated"})
//	claims, err := verifier.Verify(ctx, rawToken)
//	if errors.Is(err, auth.ErrInvalidToken) {
//		// 401
//	}
//
// # Customer Context
//
// The effective customer is taken from the verified app_metadata.customer_id
// claim first, then from the effective user's own customer, otherwise none.
// A customer id sent by the client in a header is kept for display only and
// never used for authorization:
//
//	acting := auth.ResolveActingContext(authCtx)
//	if acting.CustomerID != nil { ... }
//
// # Errors
//
// AccessError carries the failure kind (Unauthenticated, Forbidden,
// ServiceUnavailable) and a human readable reason. pkg/httputil maps the kind
// onto 401, 403 and 503 responses.
//
// # Related Packages
//
//   - pkg/middleware: HTTP authentication guard
//   - pkg/rbac: permission guard
//   - pkg/impersonation: impersonation sessions
package auth
