// Package config loads warden's configuration from defaults, an optional YAML
// file and environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	WARDEN_HOST="0.0.0.0"
//	WARDEN_PORT="8080"
//	WARDEN_HEALTH_PORT="9090"
//
// Session settings:
//
//	WARDEN_SESSION_BACKEND="redis"  # memory, redis
//	WARDEN_REDIS_URL="redis://localhost:6379/0"
//	WARDEN_SESSION_TTL="24h"
//
// Permission gateway:
//
//	WARDEN_GATEWAY_TYPE="http"  # http, sql, file
//	WARDEN_GATEWAY_URL="https://api.internal"
//	WARDEN_GATEWAY_SQL_DSN="postgres://localhost/warden"
//	WARDEN_GATEWAY_FIXTURE="/etc/warden/permissions.yaml"
//	WARDEN_CACHE_TTL="30s"
//	WARDEN_CACHE_REFRESH_SCHEDULE="@every 1m"
//	WARDEN_RESOLVE_TIMEOUT="0"  # 0 disables the deadline
//
// Observability settings:
//
//	WARDEN_LOG_LEVEL="info"  # debug, info, warn, error
//	WARDEN_OTEL_ENABLED="true"
//	WARDEN_OTEL_ENDPOINT="otel-collector:4317"
//
// Route paths are most conveniently set in the YAML file:
//
//	routes:
//	  loginPath: /login
//	  altLoginPath: /login/sso
//	  adminRoot: /admin
//	  operatorRoot: /dashboard
//
// Secrets (Redis password, SQL DSN, SSO client secret) are never read from the file.
package config
