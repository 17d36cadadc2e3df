package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/storage"
)

var (
	// ErrNotFound is returned when the user does not exist in the caller's scope
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when the email is already registered
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidReference is returned when a role or customer id does not exist
	ErrInvalidReference = errors.New("role or customer does not exist")
)

const userColumns = `id, email, role_id, customer_id, is_superadmin, is_customer_success, status, created_at, updated_at`

// Filter narrows a listing. A nil CustomerID lists every customer.
type Filter struct {
	CustomerID *string
	Status     auth.UserStatus
	Limit      int
	Offset     int
}

// Store persists users
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// List returns users ordered by email
func (s *Store) List(ctx context.Context, f Filter) ([]*auth.User, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.CustomerID != nil {
		args = append(args, *f.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY email LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	out := []*auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return out, nil
}

// Get returns the user, or ErrNotFound when it does not exist or belongs to
// another customer than customerID
func (s *Store) Get(ctx context.Context, id string, customerID *string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	u, err := scanUser(row)
	if storage.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !inScope(u, customerID) {
		return nil, ErrNotFound
	}
	return u, nil
}

// Invite creates a user in the invited state
func (s *Store) Invite(ctx context.Context, u *auth.User) error {
	now := s.now().UTC()
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Status = auth.StatusInvited
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, role_id, customer_id, is_superadmin, is_customer_success, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query, u.ID, u.Email, nullInt64(u.RoleID), nullString(u.CustomerID),
		u.IsSuperadmin, u.IsCustomerSuccess, string(u.Status), u.CreatedAt, u.UpdatedAt)
	switch {
	case storage.IsUniqueViolation(err):
		return ErrDuplicateEmail
	case storage.IsForeignKeyViolation(err):
		return ErrInvalidReference
	case err != nil:
		return fmt.Errorf("failed to invite user: %w", err)
	}
	return nil
}

// SetRole assigns roleID, or clears the role when roleID is nil
func (s *Store) SetRole(ctx context.Context, id string, roleID *int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET role_id = $1, updated_at = $2 WHERE id = $3`,
		nullInt64(roleID), s.now().UTC(), id)
	if storage.IsForeignKeyViolation(err) {
		return ErrInvalidReference
	}
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	return requireAffected(result)
}

// SetStatus moves the user to status
func (s *Store) SetStatus(ctx context.Context, id string, status auth.UserStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return requireAffected(result)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row scanner) (*auth.User, error) {
	var (
		u          auth.User
		roleID     sql.NullInt64
		customerID sql.NullString
		status     string
	)
	err := row.Scan(&u.ID, &u.Email, &roleID, &customerID, &u.IsSuperadmin, &u.IsCustomerSuccess,
		&status, &u.CreatedAt, &u.UpdatedAt)
	if storage.IsNotFound(err) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
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

func inScope(u *auth.User, customerID *string) bool {
	if customerID == nil {
		return true
	}
	return u.CustomerID != nil && *u.CustomerID == *customerID
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

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
