package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantadmin/pkg/rbac"
	"github.com/platinummonkey/tenantadmin/pkg/storage"
)

var (
	// ErrNotFound is returned when the customer does not exist in the caller's scope
	ErrNotFound = errors.New("customer not found")

	// ErrOwnerNotFound is returned when the proposed owner does not exist
	ErrOwnerNotFound = errors.New("owner user not found")

	// ErrOwnerOutsideCustomer is returned when the proposed owner belongs to
	// a different customer
	ErrOwnerOutsideCustomer = errors.New("owner must belong to the customer")
)

// Store persists customers
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a customer store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// List returns customers ordered by name. A non-nil only restricts the
// result to that customer.
func (s *Store) List(ctx context.Context, only *string, limit, offset int) ([]*rbac.Customer, error) {
	query := `SELECT id, name, owner_id, created_at, updated_at FROM customers`
	args := []interface{}{}
	if only != nil {
		query += ` WHERE id = $1`
		args = append(args, *only)
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	out := []*rbac.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}
	return out, nil
}

// Get returns the customer or ErrNotFound
func (s *Store) Get(ctx context.Context, id string) (*rbac.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at, updated_at FROM customers WHERE id = $1`, id)
	c, err := scanCustomer(row)
	if storage.IsNotFound(err) {
		return nil, ErrNotFound
	}
	return c, err
}

// Create inserts a customer. When ownerID is set the owner is moved into the
// new customer in the same transaction; an owner already attached to another
// customer is rejected.
func (s *Store) Create(ctx context.Context, name string, ownerID *string) (*rbac.Customer, error) {
	now := s.now().UTC()
	c := &rbac.Customer{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO customers (id, name, owner_id, created_at, updated_at) VALUES ($1, $2, NULL, $3, $4)`,
		c.ID, c.Name, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	if ownerID != nil {
		current, err := ownerCustomer(ctx, tx, *ownerID)
		if err != nil {
			return nil, err
		}
		if current.Valid && current.String != c.ID {
			return nil, ErrOwnerOutsideCustomer
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET customer_id = $1, updated_at = $2 WHERE id = $3`, c.ID, now, *ownerID); err != nil {
			return nil, fmt.Errorf("failed to attach owner: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE customers SET owner_id = $1 WHERE id = $2`, *ownerID, c.ID); err != nil {
			return nil, fmt.Errorf("failed to set owner: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit customer: %w", err)
	}
	return c, nil
}

// TransferOwner makes ownerID the owner of customerID. The new owner must
// already belong to the customer.
func (s *Store) TransferOwner(ctx context.Context, customerID, ownerID string) (*rbac.Customer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := ownerCustomer(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	if !current.Valid || current.String != customerID {
		return nil, ErrOwnerOutsideCustomer
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE customers SET owner_id = $1, updated_at = $2 WHERE id = $3
		RETURNING id, name, owner_id, created_at, updated_at
	`, ownerID, s.now().UTC(), customerID)
	c, err := scanCustomer(row)
	if storage.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit owner transfer: %w", err)
	}
	return c, nil
}

func ownerCustomer(ctx context.Context, tx *sql.Tx, userID string) (sql.NullString, error) {
	var customerID sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT customer_id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&customerID)
	if storage.IsNotFound(err) {
		return customerID, ErrOwnerNotFound
	}
	if err != nil {
		return customerID, fmt.Errorf("failed to load owner: %w", err)
	}
	return customerID, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row scanner) (*rbac.Customer, error) {
	var (
		c       rbac.Customer
		ownerID sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &ownerID, &c.CreatedAt, &c.UpdatedAt)
	if storage.IsNotFound(err) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}
	if ownerID.Valid {
		c.OwnerID = &ownerID.String
	}
	return &c, nil
}
