package gateway

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// GetMigrations returns the schema the SQL gateway reads from. The statements are
// portable between PostgreSQL and SQLite.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permissions table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS permissions (
					id TEXT PRIMARY KEY,
					code TEXT NOT NULL UNIQUE,
					description TEXT
				)`,
			},
		},
		{
			Version:     2,
			Description: "Create user_roles table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS user_roles (
					user_id TEXT NOT NULL,
					role_id TEXT NOT NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, role_id)
				)`,
			},
		},
		{
			Version:     3,
			Description: "Create role_permissions table",
			Statements: []string{
				// role_id and permission_id are nullable: rows orphaned by deletes
				// upstream are tolerated and filtered at read time.
				`CREATE TABLE IF NOT EXISTS role_permissions (
					role_id TEXT,
					permission_id TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_role_permissions_role_id ON role_permissions(role_id)`,
			},
		},
	}
}

// RunMigrations applies pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, driver string, logger logrus.FieldLogger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS warden_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM warden_migrations ORDER BY version")
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
		if err := applyMigration(ctx, db, driver, m); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"version":     m.Version,
			"description": m.Description,
		}).Info("Applied migration")
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, driver string, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		rebind(driver, "INSERT INTO warden_migrations (version, description) VALUES (?, ?)"),
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// Seed inserts fixture rows, typically loaded from a YAML file, into an empty schema.
func Seed(ctx context.Context, db *sql.DB, driver string, fixture Fixture) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, p := range fixture.Permissions {
		if _, err := tx.ExecContext(ctx, rebind(driver, "INSERT INTO permissions (id, code) VALUES (?, ?)"), p.ID, p.Code); err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", p.ID, err)
		}
	}
	for userID, roles := range fixture.UserRoles {
		for _, role := range roles {
			if _, err := tx.ExecContext(ctx, rebind(driver, "INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)"), userID, role); err != nil {
				return fmt.Errorf("failed to seed user role %s/%s: %w", userID, role, err)
			}
		}
	}
	for _, rp := range fixture.RolePermissions {
		if _, err := tx.ExecContext(ctx, rebind(driver, "INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)"),
			nullable(rp.Role), nullable(rp.Permission)); err != nil {
			return fmt.Errorf("failed to seed role permission %s/%s: %w", rp.Role, rp.Permission, err)
		}
	}
	return tx.Commit()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
