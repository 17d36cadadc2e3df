package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/tenantadmin/pkg/modules"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles and permissions",
			SQL: fmt.Sprintf(`
				CREATE SEQUENCE IF NOT EXISTS roles_id_seq START WITH %d;

				CREATE TABLE IF NOT EXISTS roles (
					id BIGINT PRIMARY KEY DEFAULT nextval('roles_id_seq'),
					name VARCHAR(255) NOT NULL UNIQUE,
					description TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				ALTER SEQUENCE roles_id_seq OWNED BY roles.id;

				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					label VARCHAR(255) NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX IF NOT EXISTS idx_role_permissions_permission_id ON role_permissions(permission_id);
			`, CustomRoleIDFloor),
		},
		{
			Version:     2,
			Description: "Create customers and users",
			SQL: `
				CREATE TABLE IF NOT EXISTS customers (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					owner_id UUID,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					email VARCHAR(320) NOT NULL UNIQUE,
					role_id BIGINT REFERENCES roles(id),
					customer_id UUID REFERENCES customers(id),
					is_superadmin BOOLEAN NOT NULL DEFAULT FALSE,
					is_customer_success BOOLEAN NOT NULL DEFAULT FALSE,
					status VARCHAR(32) NOT NULL DEFAULT 'invited'
						CHECK (status IN ('invited', 'active', 'suspended', 'deactivated')),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				ALTER TABLE customers
					ADD CONSTRAINT fk_customers_owner FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE SET NULL;

				CREATE INDEX IF NOT EXISTS idx_users_customer_id ON users(customer_id);
				CREATE INDEX IF NOT EXISTS idx_users_role_id ON users(role_id);
			`,
		},
		{
			Version:     3,
			Description: "Create articles",
			SQL: `
				CREATE TABLE IF NOT EXISTS articles (
					id UUID PRIMARY KEY,
					customer_id UUID NOT NULL REFERENCES customers(id),
					author_id UUID REFERENCES users(id) ON DELETE SET NULL,
					title VARCHAR(500) NOT NULL,
					body TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_articles_customer_id ON articles(customer_id);
			`,
		},
		{
			Version:     4,
			Description: "Seed system roles",
			SQL: `
				INSERT INTO roles (id, name, description) VALUES
					(1, 'System Administrator', 'Full access to every module'),
					(2, 'Customer Administrator', 'Manages users and content of a customer'),
					(3, 'Customer User', 'Reads content of a customer')
				ON CONFLICT (id) DO NOTHING;
			`,
		},
		{
			Version:     5,
			Description: "Create audit events",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					actor_id VARCHAR(255),
					real_actor_id VARCHAR(255),
					customer_id UUID,
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					route TEXT,
					method VARCHAR(10),
					path TEXT,
					status_code INTEGER,
					request_id VARCHAR(100),
					ip_address VARCHAR(45),
					user_agent TEXT,
					message TEXT,
					metadata JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_events_customer_id ON audit_events(customer_id);
				CREATE INDEX IF NOT EXISTS idx_audit_events_actor_id ON audit_events(actor_id);
				CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
			`,
		},
	}
}

// RunMigrations executes all pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, m := range GetMigrations() {
		if applied[m.Version] {
			continue
		}

		observability.FromContextOr(ctx, logger).WithFields(map[string]interface{}{
			"version":     m.Version,
			"description": m.Description,
		}).Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SystemRolePermissions returns the permission names each system role holds
func SystemRolePermissions(registry *modules.Registry) map[int64][]string {
	var all, customerAdmin []string
	for _, p := range registry.AllPermissions() {
		all = append(all, p.Name)
		switch p.Module {
		case modules.UserManagement, "Documents", "Notifications":
			customerAdmin = append(customerAdmin, p.Name)
		}
	}

	return map[int64][]string{
		RoleSystemAdministrator:   all,
		RoleCustomerAdministrator: customerAdmin,
		RoleCustomerUser: {
			modules.PermissionName("Documents", "viewArticles"),
			modules.PermissionName("Notifications", "viewNotifications"),
		},
	}
}

// SeedPermissions upserts every registry permission and grants system roles
// their defaults. Safe to run on every start.
func SeedPermissions(ctx context.Context, db *sql.DB, registry *modules.Registry, logger *observability.Logger) error {
	store := NewStore(db)

	n, err := registry.Seed(ctx, store)
	if err != nil {
		return err
	}

	for roleID, names := range SystemRolePermissions(registry) {
		if len(names) == 0 {
			continue
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, id FROM permissions WHERE name = ANY($2)
			ON CONFLICT DO NOTHING
		`, roleID, pq.Array(names))
		if err != nil {
			return fmt.Errorf("failed to grant system role %d: %w", roleID, err)
		}
	}

	observability.FromContextOr(ctx, logger).WithFields(map[string]interface{}{
		"permissions": n,
		"modules":     strings.Join(moduleNames(registry), ","),
	}).Info("permissions seeded")
	return nil
}

func moduleNames(registry *modules.Registry) []string {
	enabled := registry.ListEnabled()
	names := make([]string, len(enabled))
	for i, m := range enabled {
		names[i] = m.Name
	}
	return names
}
