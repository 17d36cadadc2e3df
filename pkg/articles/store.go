package articles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantadmin/pkg/storage"
)

// ErrNotFound is returned when the article does not exist in the caller's scope
var ErrNotFound = errors.New("article not found")

// Article is a customer document
type Article struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	AuthorID   *string   `json:"author_id,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists articles. A nil customer scope means system scope.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates an article store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const articleColumns = `id, customer_id, author_id, title, body, created_at, updated_at`

// List returns articles, newest first
func (s *Store) List(ctx context.Context, customerID *string, limit, offset int) ([]*Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles`
	args := []interface{}{}
	if customerID != nil {
		query += ` WHERE customer_id = $1`
		args = append(args, *customerID)
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	out := []*Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read articles: %w", err)
	}
	return out, nil
}

// Get returns an article within scope
func (s *Store) Get(ctx context.Context, customerID *string, id string) (*Article, error) {
	query, args := scoped(`SELECT `+articleColumns+` FROM articles WHERE id = $1`, id, customerID)
	a, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if storage.IsNotFound(err) {
		return nil, ErrNotFound
	}
	return a, err
}

// Create inserts a under its customer
func (s *Store) Create(ctx context.Context, a *Article) error {
	now := s.now().UTC()
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now

	var author sql.NullString
	if a.AuthorID != nil {
		author = sql.NullString{String: *a.AuthorID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, customer_id, author_id, title, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.CustomerID, author, a.Title, a.Body, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

// Update replaces title and body of an article within scope
func (s *Store) Update(ctx context.Context, customerID *string, id, title, body string) (*Article, error) {
	base := `UPDATE articles SET title = $2, body = $3, updated_at = $4 WHERE id = $1`
	query, args := scoped(base, id, customerID, title, body, s.now().UTC())
	query += ` RETURNING ` + articleColumns

	a, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if storage.IsNotFound(err) {
		return nil, ErrNotFound
	}
	return a, err
}

// Delete removes an article within scope
func (s *Store) Delete(ctx context.Context, customerID *string, id string) error {
	query, args := scoped(`DELETE FROM articles WHERE id = $1`, id, customerID)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scoped appends the customer predicate as the last placeholder. base must
// take id as $1 followed by extra.
func scoped(base, id string, customerID *string, extra ...interface{}) (string, []interface{}) {
	args := append([]interface{}{id}, extra...)
	if customerID == nil {
		return base, args
	}
	args = append(args, *customerID)
	return base + fmt.Sprintf(` AND customer_id = $%d`, len(args)), args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row scanner) (*Article, error) {
	var (
		a      Article
		author sql.NullString
	)
	err := row.Scan(&a.ID, &a.CustomerID, &author, &a.Title, &a.Body, &a.CreatedAt, &a.UpdatedAt)
	if storage.IsNotFound(err) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}
	if author.Valid {
		a.AuthorID = &author.String
	}
	return &a, nil
}
