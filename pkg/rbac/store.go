package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/storage"
)

// Store handles role, permission, user and customer reads for authorization
// and role administration writes
type Store struct {
	db storage.DBTX
}

// NewStore creates a new RBAC store
func NewStore(db storage.DBTX) *Store {
	return &Store{db: db}
}

// FindUserByID returns the user or nil when no row exists
func (s *Store) FindUserByID(ctx context.Context, id string) (*auth.User, error) {
	query := `
		SELECT id, email, role_id, customer_id, is_superadmin, is_customer_success, status, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var (
		u          auth.User
		roleID     sql.NullInt64
		customerID sql.NullString
		status     string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&roleID,
		&customerID,
		&u.IsSuperadmin,
		&u.IsCustomerSuccess,
		&status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if storage.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	u.Status = auth.UserStatus(status)
	if roleID.Valid {
		u.RoleID = &roleID.Int64
	}
	if customerID.Valid {
		u.CustomerID = &customerID.String
	}
	return &u, nil
}

// FindRoleByID returns the role with its permission names in one round trip,
// or nil when no row exists
func (s *Store) FindRoleByID(ctx context.Context, id int64) (*Role, error) {
	query := `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at, p.name
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE r.id = $1
		ORDER BY p.name
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find role: %w", err)
	}
	defer rows.Close()

	var role *Role
	for rows.Next() {
		var (
			r    Role
			desc sql.NullString
			perm sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &desc, &r.CreatedAt, &r.UpdatedAt, &perm); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		if role == nil {
			r.Description = desc.String
			r.IsSystem = IsSystemRole(r.ID)
			r.Permissions = []string{}
			role = &r
		}
		if perm.Valid {
			role.Permissions = append(role.Permissions, perm.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read role: %w", err)
	}

	return role, nil
}

// FindCustomerByID returns the customer or nil when no row exists
func (s *Store) FindCustomerByID(ctx context.Context, id string) (*Customer, error) {
	query := `
		SELECT id, name, owner_id, created_at, updated_at
		FROM customers
		WHERE id = $1
	`

	var (
		c       Customer
		ownerID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &ownerID, &c.CreatedAt, &c.UpdatedAt)
	if storage.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}

	if ownerID.Valid {
		c.OwnerID = &ownerID.String
	}
	return &c, nil
}

// GetRole is FindRoleByID returning ErrNotFound instead of nil
func (s *Store) GetRole(ctx context.Context, id int64) (*Role, error) {
	role, err := s.FindRoleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, ErrNotFound
	}
	return role, nil
}

// ListRoles returns all roles ordered by id, with permissions
func (s *Store) ListRoles(ctx context.Context) ([]*Role, error) {
	query := `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at, p.name
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		ORDER BY r.id, p.name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	var current *Role
	for rows.Next() {
		var (
			r    Role
			desc sql.NullString
			perm sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &desc, &r.CreatedAt, &r.UpdatedAt, &perm); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		if current == nil || current.ID != r.ID {
			r.Description = desc.String
			r.IsSystem = IsSystemRole(r.ID)
			r.Permissions = []string{}
			current = &r
			roles = append(roles, current)
		}
		if perm.Valid {
			current.Permissions = append(current.Permissions, perm.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}

	return roles, nil
}

// CreateRole inserts a custom role; the id comes from the roles sequence
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	query := `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query, role.Name, role.Description, now, now).Scan(&role.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	role.IsSystem = false
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	return nil
}

// UpdateRole updates name and description of a custom role
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	if IsSystemRole(role.ID) {
		return ErrSystemRole
	}

	query := `
		UPDATE roles
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4
	`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, role.Name, role.Description, now, role.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to update role: %w", err)
	}

	if err := requireAffected(result); err != nil {
		return err
	}
	role.UpdatedAt = now
	return nil
}

// DeleteRole removes a custom role that no user references
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	if IsSystemRole(id) {
		return ErrSystemRole
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inUse int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, id).Scan(&inUse); err != nil {
		return fmt.Errorf("failed to count role users: %w", err)
	}
	if inUse > 0 {
		return ErrRoleInUse
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete role permissions: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	return tx.Commit()
}

// SetRolePermissions replaces the permission set of a custom role. Every name
// must already exist in the permissions table.
func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, names []string) error {
	if IsSystemRole(roleID) {
		return ErrSystemRole
	}

	wanted := NewPermissionSet(names...).Names()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	ids := make([]int64, 0, len(wanted))
	if len(wanted) > 0 {
		rows, err := tx.QueryContext(ctx, `SELECT id, name FROM permissions WHERE name = ANY($1)`, pq.Array(wanted))
		if err != nil {
			return fmt.Errorf("failed to resolve permissions: %w", err)
		}
		found := make(map[string]struct{}, len(wanted))
		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan permission: %w", err)
			}
			ids = append(ids, id)
			found[name] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read permissions: %w", err)
		}

		var unknown []string
		for _, n := range wanted {
			if _, ok := found[n]; !ok {
				unknown = append(unknown, n)
			}
		}
		if len(unknown) > 0 {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, strings.Join(unknown, ", "))
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}

	for _, pid := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, pid); err != nil {
			return fmt.Errorf("failed to grant permission: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE roles SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), roleID); err != nil {
		return fmt.Errorf("failed to touch role: %w", err)
	}

	return tx.Commit()
}

// UpsertPermission inserts a permission by name or refreshes its label
func (s *Store) UpsertPermission(ctx context.Context, name, label string) error {
	query := `
		INSERT INTO permissions (name, label)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET label = excluded.label
	`

	if _, err := s.db.ExecContext(ctx, query, name, label); err != nil {
		return fmt.Errorf("failed to upsert permission %s: %w", name, err)
	}
	return nil
}

// ListPermissions returns all seeded permissions ordered by name
func (s *Store) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, label FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var out []PermissionRecord
	for rows.Next() {
		var p PermissionRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.Label); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
