package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/platinummonkey/warden/pkg/api"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/gateway"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/sso"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Fatal("warden exited with error")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown := observability.NewShutdownManager(logger, srv, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTelConfig(), logger)
	if err != nil {
		return err
	}
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}
	var otelMetrics *observability.OTelMetrics
	if providers != nil {
		otelMetrics, err = observability.NewOTelMetrics(providers.MeterProvider)
		if err != nil {
			return err
		}
	}

	health := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion)

	backend, err := newSessionBackend(cfg, health)
	if err != nil {
		return err
	}
	shutdown.Register("session-backend", func(context.Context) error { return backend.Close() })

	gw, err := newGateway(ctx, cfg, logger, metrics, health, shutdown)
	if err != nil {
		return err
	}

	auditLog, err := newAuditLogger(cfg, logger)
	if err != nil {
		return err
	}
	shutdown.Register("audit-log", func(context.Context) error { return auditLog.Close() })

	resolverOpts := []rbac.Option{
		rbac.WithLogger(logger),
		rbac.WithMetrics(metrics),
		rbac.WithOTelMetrics(otelMetrics),
		rbac.WithTimeout(cfg.Auth.ResolveTimeout),
	}
	if providers != nil {
		resolverOpts = append(resolverOpts, rbac.WithTracerProvider(providers.TracerProvider))
	}

	opts := api.Options{
		Manager:  session.NewManager(backend, session.WithLogger(logger), session.WithMetrics(metrics)),
		Resolver: rbac.NewResolver(gw, resolverOpts...),
		Routes:   cfg.Routes,
		Cookie: middleware.CookieConfig{
			Name:   cfg.Session.CookieName,
			Path:   "/",
			Secure: cfg.Session.CookieSecure,
			MaxAge: cfg.Session.TTL,
		},
		LoginLimiter: newLoginLimiter(ctx, cfg, backend),
		Audit:        auditLog,
		Logger:       logger,
		Metrics:      metrics,
		OTelMetrics:  otelMetrics,
	}

	if cfg.Auth.TokenServiceURL != "" {
		tokens, err := gateway.NewHTTPTokenService(cfg.Auth.TokenServiceURL, gateway.NewHTTPClient(cfg.Gateway.Timeout))
		if err != nil {
			return err
		}
		opts.Tokens = tokens
	} else {
		logger.Warn("No token service configured, password login is disabled")
	}

	if cfg.SSO.Enabled {
		login, err := sso.NewOIDCLogin(ctx, sso.Config{
			IssuerURL:    cfg.SSO.IssuerURL,
			ClientID:     cfg.SSO.ClientID,
			ClientSecret: cfg.SSO.ClientSecret,
			RedirectURL:  cfg.SSO.RedirectURL,
			Scopes:       cfg.SSO.Scopes,
			RolesClaim:   cfg.SSO.RolesClaim,
			HTTPClient:   gateway.NewHTTPClient(cfg.Gateway.Timeout),
			SecureCookie: cfg.Session.CookieSecure,
		})
		if err != nil {
			return err
		}
		opts.SSO = login
		logger.WithField("issuer", cfg.SSO.IssuerURL).Info("SSO login enabled")
	}

	server := api.NewServer(opts)
	srv.Handler = otelhttp.NewHandler(server.Handler(), "warden")

	healthSrv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: api.NewHealthRouter(health, registry),
	}
	shutdown.Register("health-server", healthSrv.Shutdown)

	go serve(logger, "health", healthSrv)
	go serve(logger, "http", srv)

	return shutdown.WaitForShutdown(ctx)
}

func serve(logger logrus.FieldLogger, name string, srv *http.Server) {
	logger.WithFields(logrus.Fields{"server": name, "addr": srv.Addr}).Info("Starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("server", name).Fatal("Server failed")
	}
}
