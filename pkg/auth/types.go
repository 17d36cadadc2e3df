package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserStatus is the lifecycle state of a user. Users are never deleted, they
// transition to StatusDeactivated instead.
type UserStatus string

const (
	StatusInvited     UserStatus = "invited"
	StatusActive      UserStatus = "active"
	StatusSuspended   UserStatus = "suspended"
	StatusDeactivated UserStatus = "deactivated"
)

// Valid reports whether s is a known status
func (s UserStatus) Valid() bool {
	switch s {
	case StatusInvited, StatusActive, StatusSuspended, StatusDeactivated:
		return true
	}
	return false
}

// User represents a platform user
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	RoleID            *int64     `json:"role_id,omitempty"`
	CustomerID        *string    `json:"customer_id,omitempty"`
	IsSuperadmin      bool       `json:"is_superadmin"`
	IsCustomerSuccess bool       `json:"is_customer_success"`
	Status            UserStatus `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// AppMetadata is the provider-controlled part of the token. Clients cannot
// write it, which is why customer_id here is trusted.
type AppMetadata struct {
	CustomerID string `json:"customer_id,omitempty"`
}

// Claims are the verified token claims
type Claims struct {
	Email       string      `json:"email,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// AuthContext holds authenticated user information
type AuthContext struct {
	// User is nil when the token is valid but no local user row exists
	User   *User
	Claims *Claims

	// ImpersonatedUser is set while an impersonation session is active
	ImpersonatedUser *User

	// HeaderCustomerID is the client supplied X-Customer-Id value. Untrusted.
	HeaderCustomerID string
}

// IsImpersonating reports whether an impersonation target is attached
func (ac *AuthContext) IsImpersonating() bool {
	return ac != nil && ac.ImpersonatedUser != nil
}

// ActingContext is the request-scoped identity used for authorization
type ActingContext struct {
	// User is the effective user (impersonated or real), nil if unknown
	User *User `json:"user,omitempty"`

	// RealUser is the authenticated user regardless of impersonation
	RealUser *User `json:"real_user,omitempty"`

	// CustomerID is the effective customer, nil for system scope
	CustomerID *string `json:"customer_id,omitempty"`

	IsImpersonating bool `json:"is_impersonating"`

	// HeaderCustomerID is display-only and never consulted by the guard
	HeaderCustomerID string `json:"header_customer_id,omitempty"`
}

// UserID returns the effective user id or an empty string
func (a ActingContext) UserID() string {
	if a.User == nil {
		return ""
	}
	return a.User.ID
}

// ImpersonationGrant is a resolved impersonation session
type ImpersonationGrant struct {
	ActorID      string    `json:"actor_id"`
	TargetUserID string    `json:"target_user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}
