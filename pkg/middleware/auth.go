package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/contextkeys"
	"github.com/platinummonkey/tenantadmin/pkg/httputil"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
)

// Request headers read by the authentication guard
const (
	ImpersonationHeader = "X-Impersonation-Token"
	CustomerHeader      = "X-Customer-Id"
)

// UserLookup loads local user rows. A missing row is (nil, nil).
type UserLookup interface {
	FindUserByID(ctx context.Context, id string) (*auth.User, error)
}

// ImpersonationResolver resolves an impersonation token. Unknown or expired
// tokens are (nil, nil).
type ImpersonationResolver interface {
	ResolveImpersonation(ctx context.Context, token string) (*auth.ImpersonationGrant, error)
}

// AuthMiddleware authenticates bearer tokens and attaches the auth and acting
// contexts to the request
type AuthMiddleware struct {
	verifier      auth.TokenVerifier
	users         UserLookup
	impersonation ImpersonationResolver
	policy        auth.StoreErrorPolicy
	logger        *observability.Logger
	metrics       *observability.Metrics
	onDenied      DenialFunc
}

// DenialFunc observes requests refused with 403 during authentication.
// authCtx identifies the refused caller and is nil when no local user was found.
type DenialFunc func(r *http.Request, authCtx *auth.AuthContext, err *auth.AccessError)

// AuthOption configures an AuthMiddleware
type AuthOption func(*AuthMiddleware)

// WithImpersonation enables the impersonation header
func WithImpersonation(r ImpersonationResolver) AuthOption {
	return func(m *AuthMiddleware) { m.impersonation = r }
}

// WithStorePolicy sets what a failed user or session read means
func WithStorePolicy(p auth.StoreErrorPolicy) AuthOption {
	return func(m *AuthMiddleware) { m.policy = p }
}

// WithLogger sets the logger used when the request context has none
func WithLogger(l *observability.Logger) AuthOption {
	return func(m *AuthMiddleware) { m.logger = l }
}

// WithMetrics records authentication failures
func WithMetrics(metrics *observability.Metrics) AuthOption {
	return func(m *AuthMiddleware) { m.metrics = metrics }
}

// WithDenialHook reports authentication-time refusals, such as inactive users
// and invalid impersonation sessions
func WithDenialHook(fn DenialFunc) AuthOption {
	return func(m *AuthMiddleware) { m.onDenied = fn }
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier auth.TokenVerifier, users UserLookup, opts ...AuthOption) *AuthMiddleware {
	m := &AuthMiddleware{
		verifier: verifier,
		users:    users,
		policy:   auth.PolicyDeny,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := m.Authenticate(r)
		if err != nil {
			if ae, ok := auth.AsAccessError(err); ok && ae.Kind == auth.KindForbidden && m.onDenied != nil {
				m.onDenied(r, authCtx, ae)
			}
			httputil.WriteAccessError(w, r, err)
			return
		}

		acting := auth.ResolveActingContext(authCtx)

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = contextkeys.WithActing(ctx, acting)
		ctx = contextkeys.WithUserID(ctx, authCtx.Claims.Subject)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate builds the AuthContext for r. It performs one user read, plus
// a session read and a target read when impersonating. On a forbidden result
// the returned AuthContext only identifies the refused caller.
func (m *AuthMiddleware) Authenticate(r *http.Request) (*auth.AuthContext, error) {
	ctx := r.Context()
	log := observability.FromContextOr(ctx, m.logger)

	raw, err := auth.ExtractBearer(r.Header.Get("Authorization"))
	if err != nil {
		m.metrics.RecordAuthnFailure("missing_token")
		return nil, auth.Unauthenticated("missing or malformed bearer token", err)
	}

	claims, err := m.verifier.Verify(ctx, raw)
	if err != nil {
		m.metrics.RecordAuthnFailure("invalid_token")
		log.WithError(err).Debug("token verification failed")
		return nil, auth.Unauthenticated("invalid or expired token", err)
	}

	user, err := m.users.FindUserByID(ctx, claims.Subject)
	if err != nil {
		log.WithField("subject", claims.Subject).WithError(err).Error("user lookup failed during authentication")
		if failErr := m.policy.Apply("user lookup unavailable", err); failErr != nil {
			return nil, failErr
		}
		user = nil
	}

	authCtx := &auth.AuthContext{
		User:             user,
		Claims:           claims,
		HeaderCustomerID: strings.TrimSpace(r.Header.Get(CustomerHeader)),
	}

	if inactive(user) {
		m.metrics.RecordAuthnFailure("inactive_user")
		return authCtx, auth.Forbidden(auth.ReasonUserInactive)
	}

	if token := strings.TrimSpace(r.Header.Get(ImpersonationHeader)); token != "" {
		target, err := m.resolveImpersonation(ctx, log, user, token)
		if err != nil {
			if auth.IsForbidden(err) {
				return authCtx, err
			}
			return nil, err
		}
		authCtx.ImpersonatedUser = target
	}

	return authCtx, nil
}

func (m *AuthMiddleware) resolveImpersonation(ctx context.Context, log *observability.Logger, user *auth.User, token string) (*auth.User, error) {
	if m.impersonation == nil || user == nil {
		return nil, auth.Forbidden(auth.ReasonInvalidImpersonation)
	}

	grant, err := m.impersonation.ResolveImpersonation(ctx, token)
	if err != nil {
		log.WithError(err).Error("impersonation session lookup failed")
		if failErr := m.policy.Apply("impersonation sessions unavailable", err); failErr != nil {
			return nil, failErr
		}
		grant = nil
	}
	if grant == nil || grant.ActorID != user.ID {
		return nil, auth.Forbidden(auth.ReasonInvalidImpersonation)
	}

	target, err := m.users.FindUserByID(ctx, grant.TargetUserID)
	if err != nil {
		log.WithField("target_user_id", grant.TargetUserID).WithError(err).Error("impersonation target lookup failed")
		if failErr := m.policy.Apply("user lookup unavailable", err); failErr != nil {
			return nil, failErr
		}
		target = nil
	}
	if target == nil {
		return nil, auth.Forbidden(auth.ReasonInvalidImpersonation)
	}
	if inactive(target) {
		m.metrics.RecordAuthnFailure("inactive_impersonation_target")
		return nil, auth.Forbidden(auth.ReasonInvalidImpersonation)
	}

	log.WithFields(map[string]interface{}{
		"actor_id":       user.ID,
		"target_user_id": target.ID,
	}).Debug("impersonation active")

	return target, nil
}

func inactive(u *auth.User) bool {
	return u != nil && (u.Status == auth.StatusSuspended || u.Status == auth.StatusDeactivated)
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, _ := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	return authCtx
}

// GetActingContext extracts the acting context from request
func GetActingContext(r *http.Request) (auth.ActingContext, bool) {
	return ActingFromContext(r.Context())
}

// ActingFromContext extracts the acting context from ctx
func ActingFromContext(ctx context.Context) (auth.ActingContext, bool) {
	acting, ok := ctx.Value(contextkeys.ActingKey).(auth.ActingContext)
	return acting, ok
}

// RequireActingContext returns the acting context or writes a 401 when the
// request did not pass the authentication guard
func RequireActingContext(w http.ResponseWriter, r *http.Request) (auth.ActingContext, bool) {
	acting, ok := GetActingContext(r)
	if !ok {
		httputil.WriteAccessError(w, r, auth.Unauthenticated("authentication required", nil))
		return auth.ActingContext{}, false
	}
	return acting, true
}
