package articles

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "customer_id", "author_id", "title", "body", "created_at", "updated_at"}

func strPtr(s string) *string { return &s }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestScoped(t *testing.T) {
	query, args := scoped(`DELETE FROM articles WHERE id = $1`, "a1", nil)
	assert.Equal(t, `DELETE FROM articles WHERE id = $1`, query)
	assert.Equal(t, []interface{}{"a1"}, args)

	query, args = scoped(`UPDATE articles SET title = $2 WHERE id = $1`, "a1", strPtr("C1"), "t")
	assert.Equal(t, `UPDATE articles SET title = $2 WHERE id = $1 AND customer_id = $3`, query)
	assert.Equal(t, []interface{}{"a1", "t", "C1"}, args)
}

func TestStore_ScopedQueries(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`FROM articles WHERE customer_id = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("C1", 20, 0).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("a1", "C1", nil, "Hello", "", now, now))
	list, err := store.List(ctx, strPtr("C1"), 20, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].AuthorID)

	mock.ExpectQuery(`FROM articles WHERE id = \$1 AND customer_id = \$2`).
		WithArgs("a1", "C2").
		WillReturnRows(sqlmock.NewRows(columns))
	_, err = store.Get(ctx, strPtr("C2"), "a1")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(`UPDATE articles SET title = \$2, body = \$3, updated_at = \$4 WHERE id = \$1 AND customer_id = \$5 RETURNING`).
		WithArgs("a1", "New", "Body", sqlmock.AnyArg(), "C1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("a1", "C1", "u1", "New", "Body", now, now))
	updated, err := store.Update(ctx, strPtr("C1"), "a1", "New", "Body")
	require.NoError(t, err)
	assert.Equal(t, "u1", *updated.AuthorID)

	mock.ExpectExec(`DELETE FROM articles WHERE id = \$1 AND customer_id = \$2`).
		WithArgs("a1", "C2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.Delete(ctx, strPtr("C2"), "a1"), ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
