package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/authgate"
	"github.com/platinummonkey/warden/pkg/gateway"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
	"gopkg.in/yaml.v3"
)

// Session backends
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Gateway types
const (
	GatewayHTTP = "http"
	GatewaySQL  = "sql"
	GatewayFile = "file"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Auth          AuthConfig          `yaml:"auth"`
	Routes        authgate.Routes     `yaml:"routes"`
	SSO           SSOConfig           `yaml:"sso"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"healthPort"`
}

// SessionConfig selects and configures the session store
type SessionConfig struct {
	Backend      string        `yaml:"backend"`
	RedisURL     string        `yaml:"redisUrl"`
	RedisDB      int           `yaml:"redisDb"`
	RedisPool    int           `yaml:"redisPoolSize"`
	TTL          time.Duration `yaml:"ttl"`
	CookieName   string        `yaml:"cookieName"`
	CookieSecure bool          `yaml:"cookieSecure"`

	// RedisPassword is only read from the environment.
	RedisPassword string `yaml:"-"`
}

// RedisConfig converts the session settings for session.NewRedisBackend
func (s SessionConfig) RedisConfig() session.RedisConfig {
	return session.RedisConfig{
		URL:      s.RedisURL,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
		PoolSize: s.RedisPool,
		TTL:      s.TTL,
	}
}

// GatewayConfig selects the permission backend and its cache
type GatewayConfig struct {
	Type    string        `yaml:"type"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`

	SQLDriver string `yaml:"sqlDriver"`
	SQLDSN    string `yaml:"-"`
	Migrate   bool   `yaml:"migrate"`

	FixturePath string `yaml:"fixturePath"`
	WatchFile   bool   `yaml:"watchFile"`

	CacheSize       int           `yaml:"cacheSize"`
	CacheTTL        time.Duration `yaml:"cacheTtl"`
	RefreshSchedule string        `yaml:"refreshSchedule"`
}

// SQLConfig converts the gateway settings for gateway.OpenDB
func (g GatewayConfig) SQLConfig() gateway.SQLConfig {
	return gateway.SQLConfig{
		Driver:  g.SQLDriver,
		DSN:     g.SQLDSN,
		Timeout: g.Timeout,
	}
}

// AuthConfig holds login and resolution settings
type AuthConfig struct {
	TokenServiceURL string `yaml:"tokenServiceUrl"`
	// ResolveTimeout bounds each permission resolution. Zero means no deadline.
	ResolveTimeout time.Duration `yaml:"resolveTimeout"`
	LoginRateLimit int           `yaml:"loginRateLimit"`
}

// SSOConfig configures the OpenID Connect login method
type SSOConfig struct {
	Enabled     bool     `yaml:"enabled"`
	IssuerURL   string   `yaml:"issuerUrl"`
	ClientID    string   `yaml:"clientId"`
	RedirectURL string   `yaml:"redirectUrl"`
	Scopes      []string `yaml:"scopes"`
	RolesClaim  string   `yaml:"rolesClaim"`

	ClientSecret string `yaml:"-"`
}

// AuditConfig configures the audit trail. With no Dir, events go to the
// service log only.
type AuditConfig struct {
	Dir      string `yaml:"dir"`
	MaxSize  int64  `yaml:"maxSize"`
	MaxFiles int    `yaml:"maxFiles"`
}

// FileLoggerConfig converts the settings for audit.NewFileLogger
func (a AuditConfig) FileLoggerConfig() audit.FileLoggerConfig {
	return audit.FileLoggerConfig{Dir: a.Dir, MaxSize: a.MaxSize, MaxFiles: a.MaxFiles}
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	MetricsEnabled bool                   `yaml:"metricsEnabled"`

	OTelEnabled        bool    `yaml:"otelEnabled"`
	OTelEndpoint       string  `yaml:"otelEndpoint"`
	OTelServiceName    string  `yaml:"otelServiceName"`
	OTelServiceVersion string  `yaml:"otelServiceVersion"`
	OTelInsecure       bool    `yaml:"otelInsecure"`
	OTelSampleRatio    float64 `yaml:"otelSampleRatio"`
}

// OTelConfig converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Default returns the configuration used before any file or environment
// overrides are applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Session: SessionConfig{
			Backend:      SessionBackendMemory,
			TTL:          24 * time.Hour,
			CookieName:   "warden_session",
			CookieSecure: true,
		},
		Gateway: GatewayConfig{
			Type:      GatewayHTTP,
			Timeout:   10 * time.Second,
			SQLDriver: gateway.DriverPostgres,
			CacheSize: 1024,
			CacheTTL:  30 * time.Second,
		},
		Auth: AuthConfig{
			LoginRateLimit: 10,
		},
		Routes: authgate.DefaultRoutes(),
		SSO: SSOConfig{
			Scopes:     []string{"openid", "profile", "email"},
			RolesClaim: "roles",
		},
		Audit: AuditConfig{
			MaxSize:  100 * 1024 * 1024,
			MaxFiles: 10,
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "warden",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by WARDEN_CONFIG_FILE, and WARDEN_* environment variables, in that
// order of precedence from lowest to highest.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("WARDEN_CONFIG_FILE", ""); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("WARDEN_HOST", s.Host)
	s.Port = getEnv("WARDEN_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("WARDEN_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("WARDEN_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("WARDEN_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("WARDEN_HEALTH_PORT", s.HealthPort)

	ss := &c.Session
	ss.Backend = getEnv("WARDEN_SESSION_BACKEND", ss.Backend)
	ss.RedisURL = getEnv("WARDEN_REDIS_URL", ss.RedisURL)
	ss.RedisPassword = getEnv("WARDEN_REDIS_PASSWORD", ss.RedisPassword)
	ss.RedisDB = getEnvInt("WARDEN_REDIS_DB", ss.RedisDB)
	ss.RedisPool = getEnvInt("WARDEN_REDIS_POOL_SIZE", ss.RedisPool)
	ss.TTL = getEnvDuration("WARDEN_SESSION_TTL", ss.TTL)
	ss.CookieName = getEnv("WARDEN_COOKIE_NAME", ss.CookieName)
	ss.CookieSecure = getEnvBool("WARDEN_COOKIE_SECURE", ss.CookieSecure)

	g := &c.Gateway
	g.Type = getEnv("WARDEN_GATEWAY_TYPE", g.Type)
	g.URL = getEnv("WARDEN_GATEWAY_URL", g.URL)
	g.Timeout = getEnvDuration("WARDEN_GATEWAY_TIMEOUT", g.Timeout)
	g.SQLDriver = getEnv("WARDEN_GATEWAY_SQL_DRIVER", g.SQLDriver)
	g.SQLDSN = getEnv("WARDEN_GATEWAY_SQL_DSN", g.SQLDSN)
	g.Migrate = getEnvBool("WARDEN_GATEWAY_MIGRATE", g.Migrate)
	g.FixturePath = getEnv("WARDEN_GATEWAY_FIXTURE", g.FixturePath)
	g.WatchFile = getEnvBool("WARDEN_GATEWAY_WATCH", g.WatchFile)
	g.CacheSize = getEnvInt("WARDEN_CACHE_SIZE", g.CacheSize)
	g.CacheTTL = getEnvDuration("WARDEN_CACHE_TTL", g.CacheTTL)
	g.RefreshSchedule = getEnv("WARDEN_CACHE_REFRESH_SCHEDULE", g.RefreshSchedule)

	a := &c.Auth
	a.TokenServiceURL = getEnv("WARDEN_TOKEN_SERVICE_URL", a.TokenServiceURL)
	a.ResolveTimeout = getEnvDuration("WARDEN_RESOLVE_TIMEOUT", a.ResolveTimeout)
	a.LoginRateLimit = getEnvInt("WARDEN_LOGIN_RATE_LIMIT", a.LoginRateLimit)

	r := &c.Routes
	r.LoginPath = getEnv("WARDEN_LOGIN_PATH", r.LoginPath)
	r.AltLoginPath = getEnv("WARDEN_ALT_LOGIN_PATH", r.AltLoginPath)
	r.AdminRoot = getEnv("WARDEN_ADMIN_ROOT", r.AdminRoot)
	r.OperatorRoot = getEnv("WARDEN_OPERATOR_ROOT", r.OperatorRoot)

	o := &c.SSO
	o.Enabled = getEnvBool("WARDEN_SSO_ENABLED", o.Enabled)
	o.IssuerURL = getEnv("WARDEN_SSO_ISSUER_URL", o.IssuerURL)
	o.ClientID = getEnv("WARDEN_SSO_CLIENT_ID", o.ClientID)
	o.ClientSecret = getEnv("WARDEN_SSO_CLIENT_SECRET", o.ClientSecret)
	o.RedirectURL = getEnv("WARDEN_SSO_REDIRECT_URL", o.RedirectURL)
	o.RolesClaim = getEnv("WARDEN_SSO_ROLES_CLAIM", o.RolesClaim)
	if scopes := getEnv("WARDEN_SSO_SCOPES", ""); scopes != "" {
		o.Scopes = splitList(scopes)
	}

	au := &c.Audit
	au.Dir = getEnv("WARDEN_AUDIT_DIR", au.Dir)
	au.MaxSize = int64(getEnvInt("WARDEN_AUDIT_MAX_SIZE", int(au.MaxSize)))
	au.MaxFiles = getEnvInt("WARDEN_AUDIT_MAX_FILES", au.MaxFiles)

	ob := &c.Observability
	if level := getEnv("WARDEN_LOG_LEVEL", ""); level != "" {
		ob.LogLevel = observability.ParseLogLevel(level)
	}
	ob.MetricsEnabled = getEnvBool("WARDEN_METRICS_ENABLED", ob.MetricsEnabled)
	ob.OTelEnabled = getEnvBool("WARDEN_OTEL_ENABLED", ob.OTelEnabled)
	ob.OTelEndpoint = getEnv("WARDEN_OTEL_ENDPOINT", ob.OTelEndpoint)
	ob.OTelServiceName = getEnv("WARDEN_OTEL_SERVICE_NAME", ob.OTelServiceName)
	ob.OTelServiceVersion = getEnv("WARDEN_OTEL_SERVICE_VERSION", ob.OTelServiceVersion)
	ob.OTelInsecure = getEnvBool("WARDEN_OTEL_INSECURE", ob.OTelInsecure)
	ob.OTelSampleRatio = getEnvFloat("WARDEN_OTEL_SAMPLE_RATIO", ob.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Session.Backend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if c.Session.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis session backend")
		}
	default:
		return fmt.Errorf("invalid session backend: %s (must be memory or redis)", c.Session.Backend)
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}

	switch c.Gateway.Type {
	case GatewayHTTP:
		if c.Gateway.URL == "" {
			return fmt.Errorf("gateway URL is required for http gateway")
		}
	case GatewaySQL:
		if c.Gateway.SQLDSN == "" {
			return fmt.Errorf("gateway SQL DSN is required for sql gateway")
		}
		if c.Gateway.SQLDriver != gateway.DriverPostgres && c.Gateway.SQLDriver != gateway.DriverSQLite {
			return fmt.Errorf("invalid gateway SQL driver: %s (must be %s or %s)", c.Gateway.SQLDriver, gateway.DriverPostgres, gateway.DriverSQLite)
		}
	case GatewayFile:
		if c.Gateway.FixturePath == "" {
			return fmt.Errorf("gateway fixture path is required for file gateway")
		}
	default:
		return fmt.Errorf("invalid gateway type: %s (must be http, sql, or file)", c.Gateway.Type)
	}
	if c.Gateway.CacheSize < 0 {
		return fmt.Errorf("gateway cache size must not be negative")
	}

	if c.Auth.ResolveTimeout < 0 {
		return fmt.Errorf("resolve timeout must not be negative")
	}

	if err := c.Routes.Validate(); err != nil {
		return err
	}

	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" || c.SSO.ClientID == "" || c.SSO.RedirectURL == "" {
			return fmt.Errorf("SSO issuer URL, client ID and redirect URL are required when SSO is enabled")
		}
	}

	if c.Audit.MaxSize < 0 || c.Audit.MaxFiles < 0 {
		return fmt.Errorf("audit max size and max files must not be negative")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
