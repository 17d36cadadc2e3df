// Package config provides application configuration management from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	TENANTADMIN_HOST="0.0.0.0"
//	TENANTADMIN_PORT="8080"
//	TENANTADMIN_HEALTH_PORT="9090"
//	TENANTADMIN_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	TENANTADMIN_POSTGRES_URL="postgres://localhost/tenantadmin?sslmode=disable"
//	TENANTADMIN_POSTGRES_REPLICA_URLS="postgres://replica-1/tenantadmin,postgres://replica-2/tenantadmin"
//	TENANTADMIN_POSTGRES_MAX_CONNS="20"
//	TENANTADMIN_RUN_MIGRATIONS="true"
//
// Token verification:
//
//	TENANTADMIN_AUTH_MODE="hmac"  # hmac, oidc
//	TENANTADMIN_JWT_SECRET="..."  # hmac only, at least 32 characters
//	TENANTADMIN_JWT_ISSUER="https://project.supabase.co/auth/v1"
//	TENANTADMIN_JWT_AUDIENCE="authenticated"
//	TENANTADMIN_JWKS_URL=""       # oidc only, skips discovery
//
// Authorization:
//
//	TENANTADMIN_STORE_ERROR_POLICY="deny"  # deny, unavailable
//	TENANTADMIN_ROLE_CACHE_SIZE="1024"     # 0 disables the cache
//	TENANTADMIN_ROLE_CACHE_TTL="30s"
//
// Impersonation:
//
//	TENANTADMIN_IMPERSONATION_ENABLED="true"
//	TENANTADMIN_IMPERSONATION_TTL="30m"
//	TENANTADMIN_REDIS_URL="redis://localhost:6379/0"
//
// Observability settings:
//
//	TENANTADMIN_LOG_LEVEL="info"  # debug, info, warn, error
//	TENANTADMIN_METRICS_ENABLED="true"
//	TENANTADMIN_OTEL_ENABLED="true"
//	TENANTADMIN_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
