package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/async"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/platinummonkey/warden/pkg/rbac"

// Resolution outcomes, used as metric labels.
const (
	OutcomeWildcard      = "wildcard"
	OutcomeAnonymous     = "no_user"
	OutcomeNoAssignments = "no_assignments"
	OutcomeResolved      = "resolved"
	OutcomeGatewayError  = "gateway_error"
	OutcomeCancelled     = "cancelled"
)

// Resolver computes effective permission sets against a Gateway.
type Resolver struct {
	gateway     Gateway
	logger      logrus.FieldLogger
	metrics     *observability.Metrics
	otelMetrics *observability.OTelMetrics
	tracer      trace.Tracer
	timeout     time.Duration
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the resolver's logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics records Prometheus metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = metrics }
}

// WithOTelMetrics records OpenTelemetry metrics
func WithOTelMetrics(metrics *observability.OTelMetrics) Option {
	return func(r *Resolver) { r.otelMetrics = metrics }
}

// WithTracerProvider sets the provider used for resolver spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Resolver) { r.tracer = tp.Tracer(tracerName) }
}

// WithTimeout bounds a background resolution. Zero, the default, means the
// resolution runs until it finishes or is cancelled.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) { r.timeout = timeout }
}

// NewResolver creates a resolver over gateway
func NewResolver(gateway Gateway, opts ...Option) *Resolver {
	r := &Resolver{
		gateway: gateway,
		logger:  logrus.StandardLogger(),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve starts resolving the session's permissions and returns immediately.
// Privileged and anonymous sessions settle synchronously; everything else loads
// in the background until applied or cancelled.
func (r *Resolver) Resolve(ctx context.Context, snap session.Snapshot) *Resolution {
	if set, outcome, ok := r.shortCircuit(snap); ok {
		r.record(ctx, outcome, 0, set)
		return SettledResolution(set)
	}

	runCtx, cancel := context.WithCancel(ctx)
	res := newPendingResolution(cancel)

	async.SafeGo(runCtx, r.logger, r.timeout, "permission resolution", func(ctx context.Context) error {
		// Settles the resolution if compute panics; no-op after a normal apply.
		defer func() {
			if res.apply(EmptySet(), ErrGatewayUnavailable) {
				r.record(ctx, OutcomeGatewayError, 0, EmptySet())
			}
		}()

		start := time.Now()
		set, outcome, err := r.compute(ctx, snap)
		if !res.apply(set, err) {
			outcome = OutcomeCancelled
		}
		r.record(ctx, outcome, time.Since(start), set)
		return nil
	})

	return res
}

// ResolveSync resolves and waits for the result. A cancelled or expired ctx
// cancels the resolution and yields the empty set.
func (r *Resolver) ResolveSync(ctx context.Context, snap session.Snapshot) *Resolution {
	res := r.Resolve(ctx, snap)
	if err := res.Wait(ctx); err != nil {
		res.Cancel()
	}
	return res
}

// ResolveUser resolves userID directly and returns gateway failures instead of
// collapsing them. It is meant for operator tooling.
func (r *Resolver) ResolveUser(ctx context.Context, userID string, roles []auth.RoleName) (PermissionSet, error) {
	snap := session.Snapshot{UserID: userID, Roles: roles}
	if set, _, ok := r.shortCircuit(snap); ok {
		return set, nil
	}
	set, _, err := r.compute(ctx, snap)
	return set, err
}

func (r *Resolver) shortCircuit(snap session.Snapshot) (PermissionSet, string, bool) {
	if snap.IsAdmin() {
		return WildcardSet(), OutcomeWildcard, true
	}
	if snap.UserID == "" {
		return EmptySet(), OutcomeAnonymous, true
	}
	return PermissionSet{}, "", false
}

func (r *Resolver) compute(ctx context.Context, snap session.Snapshot) (PermissionSet, string, error) {
	ctx, span := r.tracer.Start(ctx, "rbac.Resolve", trace.WithAttributes(attribute.String("user.id", snap.UserID)))
	defer span.End()

	if snap.Token != "" {
		ctx = contextkeys.WithToken(ctx, snap.Token)
	}
	logger := r.logger.WithField("user_id", snap.UserID)

	assignments, err := r.rolesByUser(ctx, snap.UserID)
	if err != nil {
		logger.WithError(err).Warn("failed to fetch role assignments, granting no permissions")
		return r.fail(ctx, span, err, "role assignments")
	}
	if len(assignments) == 0 {
		span.SetAttributes(attribute.String("rbac.outcome", OutcomeNoAssignments))
		return EmptySet(), OutcomeNoAssignments, nil
	}
	if err := ctx.Err(); err != nil {
		return EmptySet(), OutcomeCancelled, err
	}

	mappings, err := r.mappings(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to fetch role permission mappings, granting no permissions")
		return r.fail(ctx, span, err, "role permission mappings")
	}

	assigned := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		if a.RoleID != "" {
			assigned[a.RoleID] = struct{}{}
		}
	}

	var granted []auth.PermissionCode
	dangling, unresolved := 0, 0
	for _, m := range mappings {
		if m.Dangling() {
			dangling++
			continue
		}
		if _, ok := assigned[m.RoleID]; !ok {
			continue
		}
		if !m.Permission.IsResolved() {
			unresolved++
			continue
		}
		granted = append(granted, m.Permission.Code)
	}

	if dangling > 0 || unresolved > 0 {
		logger.WithFields(logrus.Fields{
			"dangling":   dangling,
			"unresolved": unresolved,
		}).Debug("skipped role permission mappings")
	}
	r.metrics.RecordDanglingMappings(dangling)

	set := NewPermissionSet(granted...)
	span.SetAttributes(
		attribute.String("rbac.outcome", OutcomeResolved),
		attribute.Int("rbac.assignments", len(assignments)),
		attribute.Int("rbac.permissions", set.Len()),
	)
	return set, OutcomeResolved, nil
}

func (r *Resolver) fail(ctx context.Context, span trace.Span, err error, what string) (PermissionSet, string, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, what)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return EmptySet(), OutcomeCancelled, ctxErr
	}
	if !errors.Is(err, ErrGatewayUnavailable) {
		err = fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	return EmptySet(), OutcomeGatewayError, fmt.Errorf("%s: %w", what, err)
}

func (r *Resolver) rolesByUser(ctx context.Context, userID string) ([]RoleAssignment, error) {
	ctx, span := r.tracer.Start(ctx, "rbac.RolesByUser")
	defer span.End()

	start := time.Now()
	assignments, err := r.gateway.RolesByUser(ctx, userID)
	r.recordGateway(ctx, "roles_by_user", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rbac.assignments", len(assignments)))
	return assignments, nil
}

func (r *Resolver) mappings(ctx context.Context) ([]RolePermissionMapping, error) {
	ctx, span := r.tracer.Start(ctx, "rbac.RolePermissionMappings")
	defer span.End()

	start := time.Now()
	mappings, err := r.gateway.RolePermissionMappings(ctx)
	r.recordGateway(ctx, "role_permission_mappings", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rbac.mappings", len(mappings)))
	return mappings, nil
}

func (r *Resolver) recordGateway(ctx context.Context, operation string, elapsed time.Duration, err error) {
	r.metrics.RecordGatewayRequest(operation, err, elapsed)
	r.otelMetrics.RecordGatewayCall(ctx, operation, elapsed, err)
}

func (r *Resolver) record(ctx context.Context, outcome string, elapsed time.Duration, set PermissionSet) {
	r.metrics.RecordResolution(outcome, elapsed)
	r.otelMetrics.RecordResolution(context.WithoutCancel(ctx), outcome, elapsed, set.Len())
}
