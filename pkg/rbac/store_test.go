package rbac

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStore_ReadsSurviveReplicaRemoval(t *testing.T) {
	ctx := context.Background()
	primary, pm, err := sqlmock.New()
	require.NoError(t, err)
	replica, rm, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() {
		primary.Close()
		replica.Close()
	})

	cm := storage.NewConnectionManagerFromDB(primary, replica)
	store := NewStore(cm.Reader())
	cols := []string{"id", "email", "role_id", "customer_id", "is_superadmin", "is_customer_success", "status", "created_at", "updated_at"}
	now := time.Now()

	rm.ExpectPing().WillReturnError(errors.New("connection reset"))
	require.Equal(t, 1, cm.RemoveUnhealthyReplicas(ctx))

	pm.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "a@example.com", 3, "C1", false, false, "active", now, now))

	user, err := store.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.NoError(t, pm.ExpectationsWereMet())
	assert.NoError(t, rm.ExpectationsWereMet())
}

var roleColumns = []string{"id", "name", "description", "created_at", "updated_at", "name"}

func TestStore_FindUserByID(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "email", "role_id", "customer_id", "is_superadmin", "is_customer_success", "status", "created_at", "updated_at"}).
			AddRow("u1", "a@example.com", 100, "C1", false, true, "active", now, now)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).WithArgs("u1").WillReturnRows(rows)

		user, err := store.FindUserByID(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "a@example.com", user.Email)
		require.NotNil(t, user.RoleID)
		assert.Equal(t, int64(100), *user.RoleID)
		require.NotNil(t, user.CustomerID)
		assert.Equal(t, "C1", *user.CustomerID)
		assert.True(t, user.IsCustomerSuccess)
		assert.Equal(t, auth.StatusActive, user.Status)
	})

	t.Run("null references", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "email", "role_id", "customer_id", "is_superadmin", "is_customer_success", "status", "created_at", "updated_at"}).
			AddRow("u2", "b@example.com", nil, nil, true, false, "active", now, now)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).WithArgs("u2").WillReturnRows(rows)

		user, err := store.FindUserByID(ctx, "u2")
		require.NoError(t, err)
		assert.Nil(t, user.RoleID)
		assert.Nil(t, user.CustomerID)
		assert.True(t, user.IsSuperadmin)
	})

	t.Run("missing row is nil", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).WithArgs("nobody").WillReturnError(sql.ErrNoRows)

		user, err := store.FindUserByID(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("store error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).WithArgs("u3").WillReturnError(errStoreDown)

		_, err := store.FindUserByID(ctx, "u3")
		assert.ErrorIs(t, err, errStoreDown)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindRoleByID(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("role with permissions", func(t *testing.T) {
		rows := sqlmock.NewRows(roleColumns).
			AddRow(100, "Editor", "Edits docs", now, now, viewArticles).
			AddRow(100, "Editor", "Edits docs", now, now, editArticles)
		mock.ExpectQuery(`FROM roles r\s+LEFT JOIN role_permissions`).WithArgs(int64(100)).WillReturnRows(rows)

		role, err := store.FindRoleByID(ctx, 100)
		require.NoError(t, err)
		require.NotNil(t, role)
		assert.Equal(t, "Editor", role.Name)
		assert.Equal(t, []string{viewArticles, editArticles}, role.Permissions)
		assert.False(t, role.IsSystem)
	})

	t.Run("system role without permissions", func(t *testing.T) {
		rows := sqlmock.NewRows(roleColumns).AddRow(2, "Customer Administrator", nil, now, now, nil)
		mock.ExpectQuery(`FROM roles r`).WithArgs(int64(2)).WillReturnRows(rows)

		role, err := store.FindRoleByID(ctx, 2)
		require.NoError(t, err)
		assert.True(t, role.IsSystem)
		assert.Empty(t, role.Permissions)
		assert.NotNil(t, role.Permissions)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery(`FROM roles r`).WithArgs(int64(404)).WillReturnRows(sqlmock.NewRows(roleColumns))

		role, err := store.FindRoleByID(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, role)

		mock.ExpectQuery(`FROM roles r`).WithArgs(int64(404)).WillReturnRows(sqlmock.NewRows(roleColumns))
		_, err = store.GetRole(ctx, 404)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindCustomerByID(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM customers WHERE id = \$1`).WithArgs("C1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_id", "created_at", "updated_at"}).
			AddRow("C1", "Acme", "u-owner", now, now))
	mock.ExpectQuery(`SELECT (.+) FROM customers WHERE id = \$1`).WithArgs("C9").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT (.+) FROM customers WHERE id = \$1`).WithArgs("bad claim").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "bad claim"`})

	c, err := store.FindCustomerByID(ctx, "C1")
	require.NoError(t, err)
	assert.True(t, c.IsOwnedBy("u-owner"))
	assert.False(t, c.IsOwnedBy("someone"))

	c, err = store.FindCustomerByID(ctx, "C9")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = store.FindCustomerByID(ctx, "bad claim")
	require.NoError(t, err, "a malformed customer id cannot match a customer")
	assert.Nil(t, c)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListRoles(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows(roleColumns).
		AddRow(1, "System Administrator", "", now, now, viewUsers).
		AddRow(1, "System Administrator", "", now, now, viewRoles).
		AddRow(100, "Editor", "", now, now, viewArticles).
		AddRow(101, "Empty", "", now, now, nil)
	mock.ExpectQuery(`ORDER BY r.id, p.name`).WillReturnRows(rows)

	roles, err := store.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, []string{viewUsers, viewRoles}, roles[0].Permissions)
	assert.True(t, roles[0].IsSystem)
	assert.Equal(t, []string{viewArticles}, roles[1].Permissions)
	assert.Empty(t, roles[2].Permissions)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateRole(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO roles`).
		WithArgs("Editor", "Edits docs", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))

	role := &Role{Name: "Editor", Description: "Edits docs"}
	require.NoError(t, store.CreateRole(ctx, role))
	assert.Equal(t, int64(100), role.ID)
	assert.False(t, role.CreatedAt.IsZero())

	mock.ExpectQuery(`INSERT INTO roles`).
		WillReturnError(&pq.Error{Code: "23505"})
	err := store.CreateRole(ctx, &Role{Name: "Editor"})
	assert.ErrorIs(t, err, ErrDuplicateName)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateRole(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	for id := int64(1); id <= MaxSystemRoleID; id++ {
		assert.ErrorIs(t, store.UpdateRole(ctx, &Role{ID: id, Name: "x"}), ErrSystemRole)
	}

	mock.ExpectExec(`UPDATE roles`).
		WithArgs("Writer", "", sqlmock.AnyArg(), int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpdateRole(ctx, &Role{ID: 100, Name: "Writer"}))

	mock.ExpectExec(`UPDATE roles`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.UpdateRole(ctx, &Role{ID: 555, Name: "Ghost"}), ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteRole(t *testing.T) {
	ctx := context.Background()

	t.Run("system role", func(t *testing.T) {
		store, mock := newMockStore(t)
		assert.ErrorIs(t, store.DeleteRole(ctx, RoleCustomerUser), ErrSystemRole)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("in use", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE role_id = \$1`).WithArgs(int64(100)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectRollback()

		assert.ErrorIs(t, store.DeleteRole(ctx, 100), ErrRoleInUse)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleted", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT`).WithArgs(int64(100)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`DELETE FROM role_permissions WHERE role_id = \$1`).WithArgs(int64(100)).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(`DELETE FROM roles WHERE id = \$1`).WithArgs(int64(100)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.DeleteRole(ctx, 100))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`DELETE FROM role_permissions`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DELETE FROM roles`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, store.DeleteRole(ctx, 404), ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_SetRolePermissions(t *testing.T) {
	ctx := context.Background()

	t.Run("system role", func(t *testing.T) {
		store, _ := newMockStore(t)
		assert.ErrorIs(t, store.SetRolePermissions(ctx, RoleSystemAdministrator, []string{viewUsers}), ErrSystemRole)
	})

	t.Run("replaces permissions", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(int64(100)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`SELECT id, name FROM permissions WHERE name = ANY\(\$1\)`).
			WithArgs(pq.Array([]string{editArticles, viewArticles})).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(14, viewArticles).AddRow(16, editArticles))
		mock.ExpectExec(`DELETE FROM role_permissions WHERE role_id = \$1`).WithArgs(int64(100)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO role_permissions`).WithArgs(int64(100), int64(14)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO role_permissions`).WithArgs(int64(100), int64(16)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE roles SET updated_at`).WithArgs(sqlmock.AnyArg(), int64(100)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.SetRolePermissions(ctx, 100, []string{viewArticles, editArticles, viewArticles}))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown permission", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`FROM permissions WHERE name = ANY`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(14, viewArticles))
		mock.ExpectRollback()

		err := store.SetRolePermissions(ctx, 100, []string{viewArticles, "Made:up"})
		assert.ErrorIs(t, err, ErrUnknownPermission)
		assert.Contains(t, err.Error(), "Made:up")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing role", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		assert.ErrorIs(t, store.SetRolePermissions(ctx, 404, nil), ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty set clears", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(`DELETE FROM role_permissions`).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`UPDATE roles SET updated_at`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.SetRolePermissions(ctx, 100, []string{}))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Permissions(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO permissions (.+) ON CONFLICT \(name\) DO UPDATE`).
		WithArgs(viewArticles, "View articles").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.UpsertPermission(ctx, viewArticles, "View articles"))

	mock.ExpectQuery(`SELECT id, name, label FROM permissions ORDER BY name`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "label"}).AddRow(1, viewArticles, "View articles"))
	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []PermissionRecord{{ID: 1, Name: viewArticles, Label: "View articles"}}, perms)

	require.NoError(t, mock.ExpectationsWereMet())
}
