package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML document read by FileGateway and Seed.
//
//	permissions:
//	  - {id: p1, code: reports.view}
//	userRoles:
//	  u1: [r1]
//	rolePermissions:
//	  - {role: r1, permission: p1}
type Fixture struct {
	Permissions     []FixturePermission     `yaml:"permissions"`
	UserRoles       map[string][]string     `yaml:"userRoles"`
	RolePermissions []FixtureRolePermission `yaml:"rolePermissions"`
}

// FixturePermission is one row of the permissions table
type FixturePermission struct {
	ID   string `yaml:"id"`
	Code string `yaml:"code"`
}

// FixtureRolePermission grants a permission to a role. Either side may be blank.
type FixtureRolePermission struct {
	Role       string `yaml:"role"`
	Permission string `yaml:"permission"`
}

// LoadFixture reads and parses a fixture file
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

// snapshot is the decoded, immutable form of a fixture
type fixtureSnapshot struct {
	assignments map[string][]rbac.RoleAssignment
	mappings    []rbac.RolePermissionMapping
}

func compileFixture(f Fixture) fixtureSnapshot {
	codes := make(map[string]string, len(f.Permissions))
	for _, p := range f.Permissions {
		codes[p.ID] = p.Code
	}

	snap := fixtureSnapshot{assignments: make(map[string][]rbac.RoleAssignment, len(f.UserRoles))}
	for userID, roles := range f.UserRoles {
		for _, role := range roles {
			snap.assignments[userID] = append(snap.assignments[userID], rbac.RoleAssignment{RoleID: role})
		}
	}
	for _, rp := range f.RolePermissions {
		m := rbac.RolePermissionMapping{
			RoleID:       rp.Role,
			PermissionID: rp.Permission,
			Permission:   rbac.UnresolvedPermission(rp.Permission),
		}
		if code := codes[rp.Permission]; code != "" {
			m.Permission = rbac.ResolvedPermission(auth.PermissionCode(code))
		}
		snap.mappings = append(snap.mappings, m)
	}
	return snap
}

// FileGateway serves roles and mappings from a YAML fixture and can reload it when
// the file changes. A fixture that fails to parse leaves the previous one in place.
type FileGateway struct {
	path   string
	logger logrus.FieldLogger

	mu   sync.RWMutex
	data fixtureSnapshot
}

// NewFileGateway loads path
func NewFileGateway(path string, logger logrus.FieldLogger) (*FileGateway, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	g := &FileGateway{path: path, logger: logger}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload re-reads the fixture file
func (g *FileGateway) Reload() error {
	f, err := LoadFixture(g.path)
	if err != nil {
		return err
	}
	data := compileFixture(f)

	g.mu.Lock()
	g.data = data
	g.mu.Unlock()
	return nil
}

// RolesByUser implements rbac.Gateway
func (g *FileGateway) RolesByUser(ctx context.Context, userID string) ([]rbac.RoleAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]rbac.RoleAssignment(nil), g.data.assignments[userID]...), nil
}

// RolePermissionMappings implements rbac.Gateway
func (g *FileGateway) RolePermissionMappings(ctx context.Context) ([]rbac.RolePermissionMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]rbac.RolePermissionMapping(nil), g.data.mappings...), nil
}

// Watch reloads the fixture whenever it is written or replaced, until ctx ends.
// onReload, when non-nil, is called after every successful reload.
func (g *FileGateway) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file by rename are seen.
	dir := filepath.Dir(g.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(g.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := g.Reload(); err != nil {
				g.logger.WithError(err).Warn("Failed to reload permission fixture, keeping previous version")
				continue
			}
			g.logger.WithField("path", g.path).Info("Reloaded permission fixture")
			if onReload != nil {
				onReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			g.logger.WithError(err).Warn("Fixture watcher error")
		}
	}
}
