// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tenantadmin/pkg/contextkeys"
//	ctx = contextkeys.WithAuth(ctx, authCtx)
//	authCtx, _ := ctx.Value(contextkeys.AuthKey).(*auth.AuthContext)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: All protected API endpoints, permission guard
	// Type: *auth.AuthContext
	AuthKey Key = "auth_context"

	// ActingKey contains auth.ActingContext (effective user and customer)
	// Set by: middleware.AuthMiddleware after impersonation is resolved
	// Required by: rbac.PermissionMiddleware, customer-scoped handlers
	// Type: auth.ActingContext
	ActingKey Key = "acting_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user ID string
	// Set by: Auth middleware after user authentication
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithActing adds the acting context to the context
func WithActing(ctx context.Context, acting interface{}) context.Context {
	return context.WithValue(ctx, ActingKey, acting)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
