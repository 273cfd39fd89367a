package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/platinummonkey/warden"

// OTelMetrics holds OpenTelemetry metric instruments for the authorization path.
// A nil *OTelMetrics records nothing.
type OTelMetrics struct {
	resolutionsTotal   metric.Int64Counter
	resolutionDuration metric.Float64Histogram
	permissionsGranted metric.Int64Histogram

	gatewayCallsTotal   metric.Int64Counter
	gatewayCallDuration metric.Float64Histogram

	redirectsTotal metric.Int64Counter
}

// NewOTelMetrics creates instruments on the given provider, or the global one when nil.
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &OTelMetrics{}
	var err error

	m.resolutionsTotal, err = meter.Int64Counter(
		"warden.resolutions",
		metric.WithDescription("Total number of effective permission resolutions"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolutions counter: %w", err)
	}

	m.resolutionDuration, err = meter.Float64Histogram(
		"warden.resolution.duration",
		metric.WithDescription("Effective permission resolution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolution duration histogram: %w", err)
	}

	m.permissionsGranted, err = meter.Int64Histogram(
		"warden.resolution.permissions",
		metric.WithDescription("Number of distinct permission codes granted per resolution"),
		metric.WithUnit("{permission}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create permissions histogram: %w", err)
	}

	m.gatewayCallsTotal, err = meter.Int64Counter(
		"warden.gateway.calls",
		metric.WithDescription("Total number of permission gateway calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway calls counter: %w", err)
	}

	m.gatewayCallDuration, err = meter.Float64Histogram(
		"warden.gateway.duration",
		metric.WithDescription("Permission gateway call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway duration histogram: %w", err)
	}

	m.redirectsTotal, err = meter.Int64Counter(
		"warden.route.redirects",
		metric.WithDescription("Total number of route guard redirects"),
		metric.WithUnit("{redirect}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redirects counter: %w", err)
	}

	return m, nil
}

// RecordResolution records a finished resolution. granted is -1 for the wildcard set.
func (m *OTelMetrics) RecordResolution(ctx context.Context, outcome string, duration time.Duration, granted int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.resolutionsTotal.Add(ctx, 1, attrs)
	m.resolutionDuration.Record(ctx, duration.Seconds(), attrs)
	if granted >= 0 {
		m.permissionsGranted.Record(ctx, int64(granted), attrs)
	}
}

// RecordGatewayCall records a permission gateway call
func (m *OTelMetrics) RecordGatewayCall(ctx context.Context, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("gateway.operation", operation),
		attribute.Bool("error", err != nil),
	)
	m.gatewayCallsTotal.Add(ctx, 1, attrs)
	m.gatewayCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRedirect records a route guard redirect
func (m *OTelMetrics) RecordRedirect(ctx context.Context, state, target string) {
	if m == nil {
		return
	}
	m.redirectsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth.state", state),
		attribute.String("redirect.target", target),
	))
}
