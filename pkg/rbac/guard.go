package rbac

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/modules"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
)

// Rule names, in evaluation order, plus the terminal decisions
const (
	RuleSuperadmin      = "superadmin"
	RuleCustomerSuccess = "customer-success"
	RuleCustomerOwner   = "customer-owner"

	decisionEmpty    = "no-permissions-required"
	decisionUser     = "user"
	decisionRole     = "role"
	decisionWildcard = "system-wildcard"
)

// documentsPrefix grants customer-success users every Documents permission
const documentsPrefix = "Documents" + modules.Separator

// RoleFinder resolves a role with its permission names. nil means not found.
type RoleFinder interface {
	FindRoleByID(ctx context.Context, id int64) (*Role, error)
}

// CustomerFinder resolves a customer. nil means not found.
type CustomerFinder interface {
	FindCustomerByID(ctx context.Context, id string) (*Customer, error)
}

// Lookup is the read side the guard needs from the store
type Lookup interface {
	RoleFinder
	CustomerFinder
}

// Request is what a rule sees
type Request struct {
	Acting   auth.ActingContext
	Required PermissionSet
}

// Rule is a named short-circuit. Evaluate returns true to allow immediately.
// An error means a store read failed and is handled by the guard's policy.
type Rule struct {
	Name     string
	Evaluate func(ctx context.Context, req Request) (bool, error)
}

// SuperadminRule allows superadmins everything
func SuperadminRule() Rule {
	return Rule{
		Name: RuleSuperadmin,
		Evaluate: func(_ context.Context, req Request) (bool, error) {
			return req.Acting.User.IsSuperadmin, nil
		},
	}
}

// CustomerSuccessRule allows customer-success users when any required
// permission belongs to the UserManagement module or is a Documents permission
func CustomerSuccessRule(registry *modules.Registry) Rule {
	allowlist := registry.UserManagementPermissions()
	return Rule{
		Name: RuleCustomerSuccess,
		Evaluate: func(_ context.Context, req Request) (bool, error) {
			if !req.Acting.User.IsCustomerSuccess {
				return false, nil
			}
			for name := range req.Required {
				if _, ok := allowlist[name]; ok {
					return true, nil
				}
				if strings.HasPrefix(name, documentsPrefix) {
					return true, nil
				}
			}
			return false, nil
		},
	}
}

// CustomerOwnerRule allows the owner of the acting customer. The acting
// customer follows claim precedence, so an owner switched into their own
// customer passes even when their stored customer differs.
func CustomerOwnerRule(customers CustomerFinder) Rule {
	return Rule{
		Name: RuleCustomerOwner,
		Evaluate: func(ctx context.Context, req Request) (bool, error) {
			if req.Acting.CustomerID == nil {
				return false, nil
			}
			customer, err := customers.FindCustomerByID(ctx, *req.Acting.CustomerID)
			if err != nil {
				return false, err
			}
			return customer.IsOwnedBy(req.Acting.User.ID), nil
		},
	}
}

// DefaultRules returns the short-circuits in their fixed order
func DefaultRules(lookup Lookup, registry *modules.Registry) []Rule {
	return []Rule{
		SuperadminRule(),
		CustomerSuccessRule(registry),
		CustomerOwnerRule(lookup),
	}
}

// Guard enforces declared permission sets against the acting context
type Guard struct {
	roles   RoleFinder
	rules   []Rule
	policy  auth.StoreErrorPolicy
	logger  *observability.Logger
	metrics *observability.Metrics
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithStoreErrorPolicy sets the policy for failed store reads
func WithStoreErrorPolicy(p auth.StoreErrorPolicy) GuardOption {
	return func(g *Guard) { g.policy = p }
}

// WithGuardLogger sets the logger used when the request context has none
func WithGuardLogger(l *observability.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// WithGuardMetrics records decisions and store errors
func WithGuardMetrics(m *observability.Metrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// WithRules replaces the short-circuit rules
func WithRules(rules ...Rule) GuardOption {
	return func(g *Guard) { g.rules = rules }
}

// NewGuard builds a guard with the default rule order
func NewGuard(lookup Lookup, registry *modules.Registry, opts ...GuardOption) *Guard {
	g := &Guard{
		roles:  lookup,
		rules:  DefaultRules(lookup, registry),
		policy: auth.PolicyDeny,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RuleNames returns the short-circuit rule names in evaluation order
func (g *Guard) RuleNames() []string {
	names := make([]string, len(g.rules))
	for i, r := range g.rules {
		names[i] = r.Name
	}
	return names
}

// Policy returns the configured store error policy
func (g *Guard) Policy() auth.StoreErrorPolicy {
	return g.policy
}

// Check returns nil when acting may access an endpoint declaring required,
// otherwise an *auth.AccessError
func (g *Guard) Check(ctx context.Context, acting auth.ActingContext, required PermissionSet) (err error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "rbac.Guard.Check", trace.WithAttributes(
		attribute.StringSlice("rbac.required", required.Names()),
		attribute.String("rbac.user_id", acting.UserID()),
		attribute.Bool("rbac.impersonating", acting.IsImpersonating),
	))
	defer span.End()

	decision := ""
	defer func() {
		outcome := "allow"
		if err != nil {
			outcome = "deny"
		}
		span.SetAttributes(attribute.String("rbac.decision", decision), attribute.String("rbac.outcome", outcome))
		g.metrics.RecordDecision(decision, outcome, time.Since(start))
		if err != nil {
			g.log(ctx).WithFields(map[string]interface{}{
				"decision":        decision,
				"required":        required.Names(),
				"acting_user_id":  acting.UserID(),
				"impersonating":   acting.IsImpersonating,
				"acting_customer": derefString(acting.CustomerID),
			}).WithError(err).Info("access denied")
		}
	}()

	if required.Empty() {
		decision = decisionEmpty
		return nil
	}

	if acting.User == nil {
		decision = decisionUser
		return auth.Forbidden(auth.ReasonUserNotFound)
	}

	req := Request{Acting: acting, Required: required}
	for _, rule := range g.rules {
		ok, ruleErr := rule.Evaluate(ctx, req)
		if ruleErr != nil {
			span.RecordError(ruleErr)
			if failErr := g.storeFailure(ctx, rule.Name, ruleErr); failErr != nil {
				decision = rule.Name
				return failErr
			}
			continue
		}
		if ok {
			decision = rule.Name
			return nil
		}
	}

	decision, err = g.checkRole(ctx, req)
	if err != nil {
		if ae, ok := auth.AsAccessError(err); ok && ae.Err != nil {
			span.RecordError(ae.Err)
		}
	}
	return err
}

func (g *Guard) checkRole(ctx context.Context, req Request) (string, error) {
	user := req.Acting.User
	if user.RoleID == nil {
		return decisionRole, auth.Forbidden(auth.ReasonNoRole)
	}

	role, err := g.roles.FindRoleByID(ctx, *user.RoleID)
	if err != nil {
		if failErr := g.storeFailure(ctx, "find_role", err); failErr != nil {
			return decisionRole, failErr
		}
		role = nil
	}
	if role == nil {
		return decisionRole, auth.Forbidden(auth.ReasonRoleNotFound)
	}
	if len(role.Permissions) == 0 {
		return decisionRole, auth.Forbidden(auth.ReasonPermissionsNotFound)
	}

	if req.Required.Has(Wildcard) && user.CustomerID == nil {
		return decisionWildcard, nil
	}

	concrete := req.Required.Without(Wildcard)
	if concrete.Intersects(role.PermissionSet()) {
		return decisionRole, nil
	}

	missing := concrete.Names()
	if len(missing) == 0 {
		missing = []string{Wildcard}
	}
	return decisionRole, auth.MissingPermissions(missing, req.Acting.IsImpersonating)
}

// storeFailure applies the policy. A nil return means "continue as not found".
func (g *Guard) storeFailure(ctx context.Context, op string, err error) error {
	g.metrics.RecordStoreError(op)
	g.log(ctx).WithField("operation", op).WithField("policy", string(g.policy)).WithError(err).
		Error("store lookup failed during authorization")

	return g.policy.Apply("authorization data unavailable", err)
}

func (g *Guard) log(ctx context.Context) *observability.Logger {
	return observability.WithTraceContext(ctx, observability.FromContextOr(ctx, g.logger))
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
