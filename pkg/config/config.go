package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
	"github.com/platinummonkey/tenantadmin/pkg/storage"
)

// Token verification modes
const (
	AuthModeHMAC = "hmac"
	AuthModeOIDC = "oidc"
)

// minSecretLength is the shortest accepted HS256 secret
const minSecretLength = 32

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis backs impersonation sessions
	Redis storage.RedisConfig

	// Auth configures token verification
	Auth AuthConfig

	// RBAC configures the permission guard
	RBAC RBACConfig

	// Impersonation configuration
	Impersonation ImpersonationConfig

	// Audit configures the admin audit trail
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds the Postgres pool settings
type DatabaseConfig struct {
	storage.ConnectionConfig

	// MaintenanceInterval controls replica health checks and pool stats export
	MaintenanceInterval time.Duration

	// RunMigrations applies pending migrations and seeds permissions at startup
	RunMigrations bool
}

// AuthConfig selects and configures the token verifier
type AuthConfig struct {
	Mode string
	HMAC auth.HMACConfig
	OIDC auth.OIDCConfig
}

// RBACConfig holds permission guard settings
type RBACConfig struct {
	RoleCacheSize    int
	RoleCacheTTL     time.Duration
	StoreErrorPolicy auth.StoreErrorPolicy

	rawPolicy string
}

// ImpersonationConfig holds impersonation session settings
type ImpersonationConfig struct {
	Enabled    bool
	SessionTTL time.Duration
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled bool

	// LogEvents mirrors audit events to the application log
	LogEvents bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTel observability.OTelConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		RBAC:          loadRBACConfig(),
		Impersonation: loadImpersonationConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TENANTADMIN_HOST", "0.0.0.0"),
		Port:            getEnv("TENANTADMIN_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TENANTADMIN_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTADMIN_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TENANTADMIN_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTADMIN_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TENANTADMIN_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads Postgres configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		ConnectionConfig: storage.ConnectionConfig{
			PrimaryURL:  getEnv("TENANTADMIN_POSTGRES_URL", ""),
			ReplicaURLs: storage.ParseReplicaURLs(getEnv("TENANTADMIN_POSTGRES_REPLICA_URLS", "")),
			MaxConns:    getEnvInt("TENANTADMIN_POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("TENANTADMIN_POSTGRES_MIN_CONNS", 5),
			Timeout:     getEnvDuration("TENANTADMIN_POSTGRES_TIMEOUT", 10*time.Second),
			MaxLifetime: getEnvDuration("TENANTADMIN_POSTGRES_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("TENANTADMIN_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
		},
		MaintenanceInterval: getEnvDuration("TENANTADMIN_POSTGRES_MAINTENANCE_INTERVAL", 30*time.Second),
		RunMigrations:       getEnvBool("TENANTADMIN_RUN_MIGRATIONS", true),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        getEnv("TENANTADMIN_REDIS_URL", "redis://localhost:6379/0"),
		Password:   getEnv("TENANTADMIN_REDIS_PASSWORD", ""),
		DB:         getEnvInt("TENANTADMIN_REDIS_DB", 0),
		MaxRetries: getEnvInt("TENANTADMIN_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("TENANTADMIN_REDIS_POOL_SIZE", 10),
	}
}

// loadAuthConfig loads token verification settings from environment
func loadAuthConfig() AuthConfig {
	issuer := getEnv("TENANTADMIN_JWT_ISSUER", "")
	audience := getEnv("TENANTADMIN_JWT_AUDIENCE", "authenticated")

	return AuthConfig{
		Mode: strings.ToLower(getEnv("TENANTADMIN_AUTH_MODE", AuthModeHMAC)),
		HMAC: auth.HMACConfig{
			Secret:   getEnv("TENANTADMIN_JWT_SECRET", ""),
			Issuer:   issuer,
			Audience: audience,
			Leeway:   getEnvDuration("TENANTADMIN_JWT_LEEWAY", 30*time.Second),
		},
		OIDC: auth.OIDCConfig{
			IssuerURL: issuer,
			JWKSURL:   getEnv("TENANTADMIN_JWKS_URL", ""),
			Audience:  audience,
		},
	}
}

// loadRBACConfig loads permission guard settings from environment
func loadRBACConfig() RBACConfig {
	raw := getEnv("TENANTADMIN_STORE_ERROR_POLICY", string(auth.PolicyDeny))
	policy, _ := auth.ParseStoreErrorPolicy(raw)

	return RBACConfig{
		RoleCacheSize:    getEnvInt("TENANTADMIN_ROLE_CACHE_SIZE", 1024),
		RoleCacheTTL:     getEnvDuration("TENANTADMIN_ROLE_CACHE_TTL", 30*time.Second),
		StoreErrorPolicy: policy,
		rawPolicy:        raw,
	}
}

// loadImpersonationConfig loads impersonation settings from environment
func loadImpersonationConfig() ImpersonationConfig {
	return ImpersonationConfig{
		Enabled:    getEnvBool("TENANTADMIN_IMPERSONATION_ENABLED", true),
		SessionTTL: getEnvDuration("TENANTADMIN_IMPERSONATION_TTL", 30*time.Minute),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:   getEnvBool("TENANTADMIN_AUDIT_ENABLED", true),
		LogEvents: getEnvBool("TENANTADMIN_AUDIT_LOG_EVENTS", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("TENANTADMIN_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("TENANTADMIN_METRICS_ENABLED", true),
		OTel: observability.OTelConfig{
			Enabled:        getEnvBool("TENANTADMIN_OTEL_ENABLED", false),
			Endpoint:       getEnv("TENANTADMIN_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("TENANTADMIN_OTEL_SERVICE_NAME", "tenantadmin"),
			ServiceVersion: getEnv("TENANTADMIN_OTEL_SERVICE_VERSION", "1.0.0"),
			Insecure:       getEnvBool("TENANTADMIN_OTEL_INSECURE", true),
			SampleRatio:    getEnvFloat("TENANTADMIN_OTEL_SAMPLE_RATIO", 1.0),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("postgres max connections must be positive")
	}

	if c.Impersonation.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when impersonation is enabled")
	}

	switch c.Auth.Mode {
	case AuthModeHMAC:
		if len(c.Auth.HMAC.Secret) < minSecretLength {
			return fmt.Errorf("JWT secret must be at least %d characters", minSecretLength)
		}
	case AuthModeOIDC:
		if c.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("JWT issuer is required for oidc mode")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be hmac or oidc)", c.Auth.Mode)
	}

	if c.RBAC.rawPolicy != "" {
		if _, err := auth.ParseStoreErrorPolicy(c.RBAC.rawPolicy); err != nil {
			return err
		}
	}
	if c.RBAC.RoleCacheSize < 0 {
		return fmt.Errorf("role cache size must not be negative")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTel.SampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be within [0,1]")
		}
	}

	return nil
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health/metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
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
