package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLConfig holds database connection configuration
type SQLConfig struct {
	Driver      string
	DSN         string
	MaxConns    int
	MaxIdle     int
	MaxLifetime time.Duration
	Timeout     time.Duration
}

// OpenDB opens and pings a database for use by SQLGateway
func OpenDB(cfg SQLConfig) (*sql.DB, error) {
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// SQLGateway reads roles and mappings from the user_roles, role_permissions and
// permissions tables. A mapping whose permission row is missing is returned as an
// unresolved reference.
type SQLGateway struct {
	db     *sql.DB
	driver string
}

// NewSQLGateway wraps an open database. driver selects the placeholder style.
func NewSQLGateway(db *sql.DB, driver string) *SQLGateway {
	return &SQLGateway{db: db, driver: driver}
}

// DB exposes the underlying handle for health checks and migrations
func (g *SQLGateway) DB() *sql.DB {
	return g.db
}

const (
	queryRolesByUser = `
		SELECT role_id
		FROM user_roles
		WHERE user_id = ?
		ORDER BY role_id`

	queryMappings = `
		SELECT rp.role_id, rp.permission_id, p.code
		FROM role_permissions rp
		LEFT JOIN permissions p ON p.id = rp.permission_id
		ORDER BY rp.role_id, rp.permission_id`
)

// RolesByUser implements rbac.Gateway
func (g *SQLGateway) RolesByUser(ctx context.Context, userID string) ([]rbac.RoleAssignment, error) {
	rows, err := g.db.QueryContext(ctx, g.rebind(queryRolesByUser), userID)
	if err != nil {
		return nil, g.wrap(ctx, "query user roles", err)
	}
	defer rows.Close()

	var out []rbac.RoleAssignment
	for rows.Next() {
		var roleID sql.NullString
		if err := rows.Scan(&roleID); err != nil {
			return nil, g.wrap(ctx, "scan user role", err)
		}
		out = append(out, rbac.RoleAssignment{RoleID: roleID.String})
	}
	if err := rows.Err(); err != nil {
		return nil, g.wrap(ctx, "iterate user roles", err)
	}
	return out, nil
}

// RolePermissionMappings implements rbac.Gateway
func (g *SQLGateway) RolePermissionMappings(ctx context.Context) ([]rbac.RolePermissionMapping, error) {
	rows, err := g.db.QueryContext(ctx, queryMappings)
	if err != nil {
		return nil, g.wrap(ctx, "query role permissions", err)
	}
	defer rows.Close()

	var out []rbac.RolePermissionMapping
	for rows.Next() {
		var roleID, permissionID, code sql.NullString
		if err := rows.Scan(&roleID, &permissionID, &code); err != nil {
			return nil, g.wrap(ctx, "scan role permission", err)
		}
		m := rbac.RolePermissionMapping{
			RoleID:       roleID.String,
			PermissionID: permissionID.String,
			Permission:   rbac.UnresolvedPermission(permissionID.String),
		}
		if code.Valid && code.String != "" {
			m.Permission = rbac.ResolvedPermission(auth.PermissionCode(code.String))
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, g.wrap(ctx, "iterate role permissions", err)
	}
	return out, nil
}

func (g *SQLGateway) wrap(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %w", rbac.ErrGatewayUnavailable, what, err)
}

// rebind converts ? placeholders to $N for PostgreSQL
func (g *SQLGateway) rebind(query string) string {
	return rebind(g.driver, query)
}

func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
