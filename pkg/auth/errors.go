package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken is wrapped by every verifier failure
var ErrInvalidToken = errors.New("invalid token")

// ErrorKind classifies access failures
type ErrorKind string

const (
	KindUnauthenticated    ErrorKind = "unauthenticated"
	KindForbidden          ErrorKind = "forbidden"
	KindServiceUnavailable ErrorKind = "service_unavailable"
)

// Forbidden reasons produced by the permission guard
const (
	ReasonUserNotFound         = "user not found"
	ReasonNoRole               = "no role assigned"
	ReasonRoleNotFound         = "role not found"
	ReasonPermissionsNotFound  = "permissions not found"
	ReasonMissingPermissions   = "missing required permissions"
	ReasonInvalidImpersonation = "invalid impersonation session"
	ReasonUserInactive         = "user is not active"
)

// AccessError is a terminal authentication or authorization failure
type AccessError struct {
	Kind   ErrorKind
	Reason string

	// Missing lists required permissions the role did not grant
	Missing []string

	// Impersonated is true when the denied identity was an impersonation target
	Impersonated bool

	Err error
}

func (e *AccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message(), e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message())
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// Message is the client facing text; wrapped causes are not exposed
func (e *AccessError) Message() string {
	if len(e.Missing) == 0 {
		return e.Reason
	}
	subject := "user"
	if e.Impersonated {
		subject = "impersonated user"
	}
	return fmt.Sprintf("%s for %s: %s", e.Reason, subject, strings.Join(e.Missing, ", "))
}

// Unauthenticated builds a KindUnauthenticated error
func Unauthenticated(reason string, err error) *AccessError {
	return &AccessError{Kind: KindUnauthenticated, Reason: reason, Err: err}
}

// Forbidden builds a KindForbidden error
func Forbidden(reason string) *AccessError {
	return &AccessError{Kind: KindForbidden, Reason: reason}
}

// MissingPermissions builds the permission-mismatch denial
func MissingPermissions(missing []string, impersonated bool) *AccessError {
	return &AccessError{
		Kind:         KindForbidden,
		Reason:       ReasonMissingPermissions,
		Missing:      missing,
		Impersonated: impersonated,
	}
}

// ServiceUnavailable builds a KindServiceUnavailable error wrapping a store failure
func ServiceUnavailable(reason string, err error) *AccessError {
	return &AccessError{Kind: KindServiceUnavailable, Reason: reason, Err: err}
}

// AsAccessError unwraps err into an *AccessError
func AsAccessError(err error) (*AccessError, bool) {
	var ae *AccessError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsForbidden reports whether err is a forbidden access error
func IsForbidden(err error) bool {
	ae, ok := AsAccessError(err)
	return ok && ae.Kind == KindForbidden
}

// IsUnauthenticated reports whether err is an unauthenticated access error
func IsUnauthenticated(err error) bool {
	ae, ok := AsAccessError(err)
	return ok && ae.Kind == KindUnauthenticated
}

// StoreErrorPolicy decides what a failed store read means for an access decision
type StoreErrorPolicy string

const (
	// PolicyDeny treats a failed read as "not found", which ends in a denial
	PolicyDeny StoreErrorPolicy = "deny"
	// PolicyUnavailable fails the request with ServiceUnavailable
	PolicyUnavailable StoreErrorPolicy = "unavailable"
)

// ParseStoreErrorPolicy validates a policy name; empty means PolicyDeny
func ParseStoreErrorPolicy(s string) (StoreErrorPolicy, error) {
	switch p := StoreErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyDeny, PolicyUnavailable:
		return p, nil
	case "":
		return PolicyDeny, nil
	default:
		return "", fmt.Errorf("unknown store error policy %q", s)
	}
}

// Apply returns the error to fail with, or nil to continue as if the row
// did not exist
func (p StoreErrorPolicy) Apply(reason string, err error) error {
	if p == PolicyUnavailable {
		return ServiceUnavailable(reason, err)
	}
	return nil
}
