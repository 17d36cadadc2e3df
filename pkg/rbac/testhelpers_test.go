package rbac

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/modules"
)

func strPtr(s string) *string { return &s }

func int64Ptr(i int64) *int64 { return &i }

var errStoreDown = errors.New("connection refused")

// fakeLookup is an in-memory Lookup that counts reads and can fail on demand
type fakeLookup struct {
	mu            sync.Mutex
	roles         map[int64]*Role
	customers     map[string]*Customer
	roleErr       error
	customerErr   error
	roleReads     int
	customerReads int
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		roles:     make(map[int64]*Role),
		customers: make(map[string]*Customer),
	}
}

func (f *fakeLookup) FindRoleByID(_ context.Context, id int64) (*Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleReads++
	if f.roleErr != nil {
		return nil, f.roleErr
	}
	if r, ok := f.roles[id]; ok {
		return cloneRole(r), nil
	}
	return nil, nil
}

func (f *fakeLookup) FindCustomerByID(_ context.Context, id string) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerReads++
	if f.customerErr != nil {
		return nil, f.customerErr
	}
	if c, ok := f.customers[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeLookup) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roleReads + f.customerReads
}

func (f *fakeLookup) addRole(id int64, name string, perms ...string) {
	f.roles[id] = &Role{ID: id, Name: name, Permissions: perms}
}

func (f *fakeLookup) addCustomer(id string, owner *string) {
	f.customers[id] = &Customer{ID: id, Name: id, OwnerID: owner}
}

func actingFor(u *auth.User, claimCustomer string) auth.ActingContext {
	return auth.ResolveActingContext(&auth.AuthContext{
		User:   u,
		Claims: &auth.Claims{AppMetadata: auth.AppMetadata{CustomerID: claimCustomer}},
	})
}

func testRegistry(t *testing.T) *modules.Registry {
	t.Helper()
	reg, err := modules.Default()
	require.NoError(t, err)
	return reg
}

// sqliteSchema mirrors the Postgres migrations closely enough for the store's
// portable queries
const sqliteSchema = `
CREATE TABLE roles (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE permissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	label TEXT NOT NULL DEFAULT ''
);
CREATE TABLE role_permissions (
	role_id INTEGER NOT NULL,
	permission_id INTEGER NOT NULL,
	PRIMARY KEY (role_id, permission_id)
);
CREATE TABLE customers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	owner_id TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	role_id INTEGER,
	customer_id TEXT,
	is_superadmin BOOLEAN NOT NULL DEFAULT 0,
	is_customer_success BOOLEAN NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// setupSQLite opens a private in-memory database with the schema and every
// registry permission seeded
func setupSQLite(t *testing.T) (*sql.DB, *Store) {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?cache=private")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)

	store := NewStore(db)
	_, err = testRegistry(t).Seed(context.Background(), store)
	require.NoError(t, err)

	return db, store
}

func insertRole(t *testing.T, db *sql.DB, id int64, name string, perms ...string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO roles (id, name, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, name, "", now, now)
	require.NoError(t, err)
	for _, p := range perms {
		_, err := db.Exec(`INSERT INTO role_permissions (role_id, permission_id) SELECT $1, id FROM permissions WHERE name = $2`, id, p)
		require.NoError(t, err)
	}
}

func insertCustomer(t *testing.T, db *sql.DB, id string, owner *string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO customers (id, name, owner_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, "Customer "+id, owner, now, now)
	require.NoError(t, err)
}

func insertUser(t *testing.T, db *sql.DB, u *auth.User) {
	t.Helper()
	now := time.Now().UTC()
	status := u.Status
	if status == "" {
		status = auth.StatusActive
	}
	_, err := db.Exec(`INSERT INTO users (id, email, role_id, customer_id, is_superadmin, is_customer_success, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.RoleID, u.CustomerID, u.IsSuperadmin, u.IsCustomerSuccess, string(status), now, now)
	require.NoError(t, err)
}
