package accessguard

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
)

// Decision is the outcome of a guard check
type Decision int

const (
	DecisionDenied Decision = iota
	DecisionLoading
	DecisionGranted
)

func (d Decision) String() string {
	switch d {
	case DecisionLoading:
		return "loading"
	case DecisionGranted:
		return "granted"
	default:
		return "denied"
	}
}

// Checker is the read side of a permission resolution. *rbac.Resolution
// satisfies it.
type Checker interface {
	Loading() bool
	HasAnyPermission(codes ...auth.PermissionCode) bool
	HasAllPermissions(codes ...auth.PermissionCode) bool
}

// Decide evaluates checker against the two requirement lists. A nil checker is
// denied. When all is non-empty it is the only requirement consulted.
func Decide(checker Checker, anyOf, all []auth.PermissionCode) Decision {
	if checker == nil {
		return DecisionDenied
	}
	if checker.Loading() {
		return DecisionLoading
	}

	var granted bool
	if len(all) > 0 {
		granted = checker.HasAllPermissions(all...)
	} else {
		granted = checker.HasAnyPermission(anyOf...)
	}
	if granted {
		return DecisionGranted
	}
	return DecisionDenied
}

// PermissionGuard renders its wrapped handler only for callers holding the
// required permissions.
type PermissionGuard struct {
	// Name labels decisions in metrics; defaults to "permission".
	Name string

	RequiredPermissions   []auth.PermissionCode
	RequireAllPermissions []auth.PermissionCode

	// Fallback is served on denial. Defaults to AccessDeniedHandler.
	Fallback http.Handler
	// Loading is served while the resolution is pending. Defaults to LoadingHandler.
	Loading http.Handler

	// Await bounds how long a request blocks on a pending resolution before
	// the loading view is served. Zero serves the loading view immediately.
	Await time.Duration

	Metrics *observability.Metrics
}

// Decide evaluates the guard for the resolution carried by ctx
func (g PermissionGuard) Decide(ctx context.Context) Decision {
	res, ok := rbac.ResolutionFromContext(ctx)
	if !ok || res == nil {
		return DecisionDenied
	}

	if g.Await > 0 && res.Loading() {
		waitCtx, cancel := context.WithTimeout(ctx, g.Await)
		_ = res.Wait(waitCtx)
		cancel()
	}
	return Decide(res, g.RequiredPermissions, g.RequireAllPermissions)
}

// Wrap returns a handler applying the guard in front of next
func (g PermissionGuard) Wrap(next http.Handler) http.Handler {
	name := g.Name
	if name == "" {
		name = "permission"
	}
	fallback := g.Fallback
	if fallback == nil {
		fallback = AccessDeniedHandler()
	}
	loading := g.Loading
	if loading == nil {
		loading = LoadingHandler(DefaultRefreshInterval)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := g.Decide(r.Context())
		g.Metrics.RecordAccessDecision(name, decision.String())

		switch decision {
		case DecisionGranted:
			next.ServeHTTP(w, r)
		case DecisionLoading:
			loading.ServeHTTP(w, r)
		default:
			observability.FromContext(r.Context()).
				WithField("guard", name).
				Debug("permission guard denied request")
			fallback.ServeHTTP(w, r)
		}
	})
}

// RoleGuard renders its wrapped handler only for sessions holding one of
// AllowedRoles. It reads the session snapshot and performs no gateway calls.
type RoleGuard struct {
	Name         string
	AllowedRoles []auth.RoleName
	Fallback     http.Handler
	Metrics      *observability.Metrics
}

// Allows reports whether snap holds an allowed role
func (g RoleGuard) Allows(snap session.Snapshot) bool {
	return snap.HasAnyRole(g.AllowedRoles...)
}

// Wrap returns a handler applying the guard in front of next
func (g RoleGuard) Wrap(next http.Handler) http.Handler {
	name := g.Name
	if name == "" {
		name = "role"
	}
	fallback := g.Fallback
	if fallback == nil {
		fallback = AccessDeniedHandler()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, _ := session.SnapshotFromContext(r.Context())
		if g.Allows(snap) {
			g.Metrics.RecordAccessDecision(name, DecisionGranted.String())
			next.ServeHTTP(w, r)
			return
		}
		g.Metrics.RecordAccessDecision(name, DecisionDenied.String())
		fallback.ServeHTTP(w, r)
	})
}
