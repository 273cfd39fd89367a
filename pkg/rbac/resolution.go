package rbac

import (
	"context"
	"errors"
	"sync"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/contextkeys"
)

// ErrResolutionCancelled is returned by Wait once the resolution has been cancelled.
var ErrResolutionCancelled = errors.New("permission resolution cancelled")

// Resolution is the observable state of one permission resolution. While loading,
// the permission set is empty; once applied it never changes.
type Resolution struct {
	mu          sync.RWMutex
	permissions PermissionSet
	loading     bool
	cancelled   bool
	diagnostic  error

	done     chan struct{}
	doneOnce sync.Once
	cancel   context.CancelFunc
}

func newPendingResolution(cancel context.CancelFunc) *Resolution {
	return &Resolution{
		loading: true,
		done:    make(chan struct{}),
		cancel:  cancel,
	}
}

// SettledResolution returns a resolution that has already finished with set.
func SettledResolution(set PermissionSet) *Resolution {
	r := &Resolution{permissions: set, done: make(chan struct{})}
	r.finish()
	return r
}

// apply publishes the result. It is a no-op after Cancel or a previous apply and
// reports whether the result was taken.
func (r *Resolution) apply(set PermissionSet, diagnostic error) bool {
	r.mu.Lock()
	if r.cancelled || !r.loading {
		r.mu.Unlock()
		return false
	}
	r.permissions = set
	r.diagnostic = diagnostic
	r.loading = false
	r.mu.Unlock()

	r.finish()
	return true
}

func (r *Resolution) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}

// Cancel abandons the resolution. In-flight gateway calls see a cancelled context
// and any result that still arrives is discarded.
func (r *Resolution) Cancel() {
	r.mu.Lock()
	applied := !r.loading
	if !applied {
		r.cancelled = true
		r.loading = false
	}
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	r.finish()
}

// Done is closed once the result is applied or the resolution is cancelled.
func (r *Resolution) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the resolution settles or ctx ends.
func (r *Resolution) Wait(ctx context.Context) error {
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if r.Cancelled() {
		return ErrResolutionCancelled
	}
	return nil
}

// Loading reports whether the result is still pending
func (r *Resolution) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Cancelled reports whether Cancel ran before a result was applied
func (r *Resolution) Cancelled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelled
}

// Permissions returns the current effective set; empty while loading
func (r *Resolution) Permissions() PermissionSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.permissions
}

// Diagnostic returns the failure that collapsed the result to the empty set, if any.
// It is for logging only; callers must not branch on it.
func (r *Resolution) Diagnostic() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.diagnostic
}

// HasPermission reports whether code is currently granted
func (r *Resolution) HasPermission(code auth.PermissionCode) bool {
	return r.Permissions().Has(code)
}

// HasAnyPermission is true when any code is granted, or when no codes are given
func (r *Resolution) HasAnyPermission(codes ...auth.PermissionCode) bool {
	return r.Permissions().HasAny(codes...)
}

// HasAllPermissions is true when every code is granted, or when no codes are given
func (r *Resolution) HasAllPermissions(codes ...auth.PermissionCode) bool {
	return r.Permissions().HasAll(codes...)
}

// WithResolution stores a resolution in the context
func WithResolution(ctx context.Context, r *Resolution) context.Context {
	return contextkeys.WithResolution(ctx, r)
}

// ResolutionFromContext returns the request's resolution, if any
func ResolutionFromContext(ctx context.Context) (*Resolution, bool) {
	r, ok := ctx.Value(contextkeys.ResolutionKey).(*Resolution)
	return r, ok && r != nil
}
