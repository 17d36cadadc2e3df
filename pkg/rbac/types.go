package rbac

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Wildcard in a required set means "any system-admin-class user"
const Wildcard = "*"

// System role ids. They are seeded by migrations and cannot be edited or deleted.
const (
	RoleSystemAdministrator   int64 = 1
	RoleCustomerAdministrator int64 = 2
	RoleCustomerUser          int64 = 3

	// MaxSystemRoleID is the highest reserved role id
	MaxSystemRoleID int64 = 3

	// CustomRoleIDFloor is where the roles id sequence starts for custom roles
	CustomRoleIDFloor int64 = 100
)

// IsSystemRole reports whether id is in the reserved system range
func IsSystemRole(id int64) bool {
	return id >= 1 && id <= MaxSystemRoleID
}

var (
	// ErrNotFound is returned by Get* methods when the row does not exist
	ErrNotFound = errors.New("not found")

	// ErrSystemRole is returned when a write targets a system role
	ErrSystemRole = errors.New("system roles are immutable")

	// ErrRoleInUse is returned when deleting a role still assigned to users
	ErrRoleInUse = errors.New("role is assigned to users")

	// ErrDuplicateName is returned when a role name is already taken
	ErrDuplicateName = errors.New("role name already exists")

	// ErrUnknownPermission is returned when a role references an undeclared permission
	ErrUnknownPermission = errors.New("unknown permission")
)

// PermissionSet is an unordered set of permission names
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set, dropping blank names
func NewPermissionSet(names ...string) PermissionSet {
	s := make(PermissionSet, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether name is in the set
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Empty reports whether the set has no members
func (s PermissionSet) Empty() bool {
	return len(s) == 0
}

// Intersects reports whether any member of s is in other
func (s PermissionSet) Intersects(other PermissionSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for n := range small {
		if large.Has(n) {
			return true
		}
	}
	return false
}

// SubsetOf reports whether every member of s is in other
func (s PermissionSet) SubsetOf(other PermissionSet) bool {
	for n := range s {
		if !other.Has(n) {
			return false
		}
	}
	return true
}

// Names returns the members in sorted order
func (s PermissionSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Without returns a copy of s minus name
func (s PermissionSet) Without(name string) PermissionSet {
	out := make(PermissionSet, len(s))
	for n := range s {
		if n != name {
			out[n] = struct{}{}
		}
	}
	return out
}

// Role is a named set of permissions
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PermissionSet returns the role's permissions as a set
func (r *Role) PermissionSet() PermissionSet {
	return NewPermissionSet(r.Permissions...)
}

// Customer is a tenant. OwnerID grants implicit full access to that user.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   *string   `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOwnedBy reports whether userID owns the customer
func (c *Customer) IsOwnedBy(userID string) bool {
	return c != nil && c.OwnerID != nil && userID != "" && *c.OwnerID == userID
}

// PermissionRecord is a seeded permission row
type PermissionRecord struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}
