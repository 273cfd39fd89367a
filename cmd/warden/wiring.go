package main

import (
	"context"
	"fmt"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/gateway"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/sirupsen/logrus"
)

func newSessionBackend(cfg *config.Config, health *observability.HealthChecker) (session.Backend, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		backend, err := session.NewRedisBackend(cfg.Session.RedisConfig())
		if err != nil {
			return nil, err
		}
		health.AddCheck("redis", true, observability.RedisCheck(backend.Client()))
		return backend, nil
	case config.SessionBackendMemory:
		return session.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// newGateway builds the configured permission backend and wraps it in the cache.
func newGateway(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, metrics *observability.Metrics, health *observability.HealthChecker, shutdown *observability.ShutdownManager) (rbac.Gateway, error) {
	gwCfg := cfg.Gateway
	gwLog := logger.WithField("gateway", gwCfg.Type)

	var (
		gw      rbac.Gateway
		fileGW  *gateway.FileGateway
		refresh func()
		err     error
	)

	switch gwCfg.Type {
	case config.GatewayHTTP:
		gw, err = gateway.NewHTTPGateway(gwCfg.URL, gateway.WithHTTPClient(gateway.NewHTTPClient(gwCfg.Timeout)))
		if err != nil {
			return nil, err
		}
	case config.GatewaySQL:
		db, err := gateway.OpenDB(gwCfg.SQLConfig())
		if err != nil {
			return nil, err
		}
		shutdown.Register("database", func(context.Context) error { return db.Close() })
		health.AddCheck("database", true, observability.SQLCheck(db))
		if gwCfg.Migrate {
			if err := gateway.RunMigrations(ctx, db, gwCfg.SQLDriver, gwLog); err != nil {
				return nil, err
			}
		}
		gw = gateway.NewSQLGateway(db, gwCfg.SQLDriver)
	case config.GatewayFile:
		fileGW, err = gateway.NewFileGateway(gwCfg.FixturePath, gwLog)
		if err != nil {
			return nil, err
		}
		gw = fileGW
	default:
		return nil, fmt.Errorf("unknown gateway type %q", gwCfg.Type)
	}

	if gwCfg.CacheSize > 0 {
		cached := rbac.NewCachedGateway(gw, gwCfg.CacheSize, gwCfg.CacheTTL, metrics)
		cached.SetFetchTimeout(gwCfg.Timeout)
		gw = cached
		refresh = cached.Purge

		if gwCfg.RefreshSchedule != "" {
			refresher, err := rbac.NewCacheRefresher(cached, gwCfg.RefreshSchedule, gwLog)
			if err != nil {
				return nil, err
			}
			refresher.RunOnce()
			refresher.Start()
			shutdown.Register("cache-refresher", refresher.Stop)
		}
	}

	if fileGW != nil && gwCfg.WatchFile {
		watchCtx, cancel := context.WithCancel(context.Background())
		shutdown.Register("fixture-watcher", func(context.Context) error {
			cancel()
			return nil
		})
		go func() {
			defer observability.RecoverPanic(gwLog, "fixture watcher")
			if err := fileGW.Watch(watchCtx, refresh); err != nil {
				gwLog.WithError(err).Error("Fixture watcher stopped")
			}
		}()
	}

	gwLog.Info("Permission gateway ready")
	return gw, nil
}

// newLoginLimiter shares limits through Redis when sessions live there.
func newLoginLimiter(ctx context.Context, cfg *config.Config, backend session.Backend) middleware.Limiter {
	if cfg.Auth.LoginRateLimit <= 0 {
		return nil
	}
	limits := middleware.LoginRateLimitConfig()
	limits.RequestsPerWindow = cfg.Auth.LoginRateLimit

	if rb, ok := backend.(*session.RedisBackend); ok {
		return middleware.NewDistributedRateLimiter(rb.Client(), limits, "")
	}
	limiter := middleware.NewRateLimiter(limits)
	limiter.StartCleanup(ctx)
	return limiter
}

// newAuditLogger always writes to the service log and adds a rotating file
// sink when an audit directory is configured.
func newAuditLogger(cfg *config.Config, logger logrus.FieldLogger) (audit.Logger, error) {
	logSink := audit.NewLogrusLogger(logger)
	if cfg.Audit.Dir == "" {
		return logSink, nil
	}
	fileSink, err := audit.NewFileLogger(cfg.Audit.FileLoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	logger.WithField("dir", cfg.Audit.Dir).Info("Audit file logging enabled")
	return audit.MultiLogger{logSink, fileSink}, nil
}
