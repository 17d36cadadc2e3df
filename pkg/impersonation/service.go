package impersonation

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
)

var (
	ErrSelfImpersonation    = errors.New("cannot impersonate yourself")
	ErrTargetNotFound       = errors.New("target user not found")
	ErrSuperadminTarget     = errors.New("only superadmins may impersonate superadmins")
	ErrTargetInactive       = errors.New("target user is not active")
	ErrOutsideCustomer      = errors.New("target user belongs to another customer")
	ErrAlreadyImpersonating = errors.New("stop the current impersonation first")
	ErrNoSession            = errors.New("no active impersonation session")
	ErrUnknownActor         = errors.New("actor has no local user record")
)

// UserLookup loads users. A missing row is (nil, nil).
type UserLookup interface {
	FindUserByID(ctx context.Context, id string) (*auth.User, error)
}

// Service applies the impersonation rules on top of the session store
type Service struct {
	store   *Store
	users   UserLookup
	metrics *observability.Metrics
}

// NewService creates an impersonation service. metrics may be nil.
func NewService(store *Store, users UserLookup, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		users:   users,
		metrics: metrics,
	}
}

// Start opens a session for the real user of acting
func (s *Service) Start(ctx context.Context, acting auth.ActingContext, targetID string) (session *Session, err error) {
	defer func() { s.metrics.RecordImpersonation("start", outcome(err)) }()

	actor := acting.RealUser
	if actor == nil {
		return nil, ErrUnknownActor
	}
	if acting.IsImpersonating {
		return nil, ErrAlreadyImpersonating
	}
	if targetID == actor.ID {
		return nil, ErrSelfImpersonation
	}

	target, err := s.users.FindUserByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load target: %w", err)
	}
	if target == nil {
		return nil, ErrTargetNotFound
	}
	if err := checkTarget(actor, acting.CustomerID, target); err != nil {
		return nil, err
	}

	session, err = s.store.Create(ctx, actor.ID, target.ID)
	if err != nil {
		return nil, err
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"actor_id":       actor.ID,
		"target_user_id": target.ID,
		"expires_at":     session.ExpiresAt,
	}).Info("impersonation started")

	return session, nil
}

// Stop ends the real user's session
func (s *Service) Stop(ctx context.Context, acting auth.ActingContext) (err error) {
	defer func() { s.metrics.RecordImpersonation("stop", outcome(err)) }()

	if acting.RealUser == nil {
		return ErrUnknownActor
	}

	existed, err := s.store.Delete(ctx, acting.RealUser.ID)
	if err != nil {
		return err
	}
	if !existed {
		return ErrNoSession
	}

	observability.FromContext(ctx).WithField("actor_id", acting.RealUser.ID).Info("impersonation stopped")
	return nil
}

// Active returns the real user's current session, or nil
func (s *Service) Active(ctx context.Context, acting auth.ActingContext) (*Session, error) {
	if acting.RealUser == nil {
		return nil, nil
	}
	return s.store.ActiveFor(ctx, acting.RealUser.ID)
}

func checkTarget(actor *auth.User, actingCustomer *string, target *auth.User) error {
	if target.IsSuperadmin && !actor.IsSuperadmin {
		return ErrSuperadminTarget
	}
	if target.Status == auth.StatusSuspended || target.Status == auth.StatusDeactivated {
		return ErrTargetInactive
	}

	// Superadmins and customer success staff work across customers
	if actor.IsSuperadmin || actor.IsCustomerSuccess {
		return nil
	}
	if actingCustomer == nil {
		return nil
	}
	if target.CustomerID == nil || *target.CustomerID != *actingCustomer {
		return ErrOutsideCustomer
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoSession), isRuleError(err):
		return "denied"
	default:
		return "error"
	}
}

func isRuleError(err error) bool {
	for _, e := range []error{
		ErrSelfImpersonation, ErrTargetNotFound, ErrSuperadminTarget, ErrTargetInactive,
		ErrOutsideCustomer, ErrAlreadyImpersonating, ErrUnknownActor,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
