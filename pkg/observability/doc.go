// Package observability provides structured logging, Prometheus metrics, OpenTelemetry
// tracing, health probes and graceful shutdown for warden.
//
// # Structured Logging
//
// Loggers are logrus loggers with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Info("resolving permissions")
//
// FromContext decorates the logger with request_id and user_id when present.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordResolution("resolved", elapsed)
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// A nil *Metrics is valid everywhere and records nothing, so components can be built
// without a registry in tests.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("redis", true, observability.RedisCheck(client))
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "warden",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging and recovery middleware
package observability
