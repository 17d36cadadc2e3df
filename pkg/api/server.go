package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantadmin/pkg/articles"
	"github.com/platinummonkey/tenantadmin/pkg/audit"
	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/customers"
	"github.com/platinummonkey/tenantadmin/pkg/httputil"
	"github.com/platinummonkey/tenantadmin/pkg/impersonation"
	"github.com/platinummonkey/tenantadmin/pkg/middleware"
	"github.com/platinummonkey/tenantadmin/pkg/modules"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
	"github.com/platinummonkey/tenantadmin/pkg/rbac"
	"github.com/platinummonkey/tenantadmin/pkg/storage"
	"github.com/platinummonkey/tenantadmin/pkg/users"
)

// PathPrefix is where every API route is mounted
const PathPrefix = "/api/v1"

// Config holds the dependencies of the API server
type Config struct {
	Registry *modules.Registry
	Verifier auth.TokenVerifier

	// DB takes writes. ReadDB serves authorization reads and defaults to DB.
	// Pass ConnectionManager.Reader so each read picks a live replica.
	DB     *sql.DB
	ReadDB storage.DBTX

	// Redis enables impersonation when set
	Redis            *redis.Client
	ImpersonationTTL time.Duration

	// RoleCacheSize of zero disables the role cache
	RoleCacheSize int
	RoleCacheTTL  time.Duration

	StorePolicy auth.StoreErrorPolicy

	// AuditEnabled records mutating and refused requests in audit_events.
	// AuditLogEvents also mirrors them to the application log.
	AuditEnabled   bool
	AuditLogEvents bool

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Version string
}

// Server represents the API server
type Server struct {
	router    *mux.Router
	handler   http.Handler
	routes    *rbac.RouteTable
	guard     *rbac.Guard
	registry  *modules.Registry
	roles     rbac.RoleFinder
	db        *sql.DB
	version   string
	startedAt time.Time
}

// NewServer wires stores, guards and handlers into a router
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("module registry is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.ReadDB == nil {
		cfg.ReadDB = cfg.DB
	}
	if cfg.StorePolicy == "" {
		cfg.StorePolicy = auth.PolicyDeny
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.GetLogger(context.Background())
	}

	writeStore := rbac.NewStore(cfg.DB)
	readStore := rbac.NewStore(cfg.ReadDB)

	var roles rbac.RoleFinder = readStore
	var cache *rbac.RoleCache
	if cfg.RoleCacheSize > 0 {
		cache = rbac.NewRoleCache(readStore, cfg.RoleCacheSize, cfg.RoleCacheTTL, cfg.Metrics)
		roles = cache
	}

	guard := rbac.NewGuard(readStore, cfg.Registry,
		rbac.WithStoreErrorPolicy(cfg.StorePolicy),
		rbac.WithGuardLogger(cfg.Logger),
		rbac.WithGuardMetrics(cfg.Metrics),
		rbac.WithRoleCache(cache),
	)

	authOpts := []middleware.AuthOption{
		middleware.WithStorePolicy(cfg.StorePolicy),
		middleware.WithLogger(cfg.Logger),
		middleware.WithMetrics(cfg.Metrics),
	}

	var impersonationHandlers *impersonation.Handlers
	if cfg.Redis != nil {
		sessions := impersonation.NewStore(cfg.Redis, cfg.ImpersonationTTL)
		impersonationHandlers = impersonation.NewHandlers(impersonation.NewService(sessions, readStore, cfg.Metrics))
		authOpts = append(authOpts, middleware.WithImpersonation(sessions))
	}

	s := &Server{
		router:    mux.NewRouter(),
		routes:    rbac.NewRouteTable(cfg.Registry),
		guard:     guard,
		registry:  cfg.Registry,
		roles:     roles,
		db:        cfg.DB,
		version:   cfg.Version,
		startedAt: time.Now(),
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "route not found")
	})
	s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))

	var recorder *audit.Middleware
	if cfg.AuditEnabled {
		sinks := []audit.Logger{audit.NewStore(cfg.DB)}
		if cfg.AuditLogEvents {
			sinks = append(sinks, audit.NewLogSink(cfg.Logger))
		}
		recorder = audit.NewMiddleware(audit.NewMultiLogger(sinks...), PathPrefix,
			audit.WithLogger(cfg.Logger),
			audit.WithMetrics(cfg.Metrics),
		)
		authOpts = append(authOpts, middleware.WithDenialHook(recorder.RecordDenial))
	}

	chain := []mux.MiddlewareFunc{middleware.NewAuthMiddleware(cfg.Verifier, readStore, authOpts...).Handler}
	if recorder != nil {
		chain = append(chain, recorder.Handler)
	}
	chain = append(chain, rbac.NewPermissionMiddleware(guard, s.routes).Handler)

	api := s.router.PathPrefix(PathPrefix).Subrouter()
	api.Use(chain...)

	s.registerSystemRoutes(api)
	rbac.NewHandlers(writeStore, cache).RegisterRoutes(api, s.routes)
	users.NewHandlers(users.NewStore(cfg.DB), writeStore).RegisterRoutes(api, s.routes)
	customers.NewHandlers(customers.NewStore(cfg.DB)).RegisterRoutes(api, s.routes)
	articles.NewHandlers(articles.NewStore(cfg.DB)).RegisterRoutes(api, s.routes)
	if impersonationHandlers != nil {
		impersonationHandlers.RegisterRoutes(api, s.routes)
	}
	if cfg.AuditEnabled {
		audit.NewHandlers(audit.NewStore(cfg.ReadDB)).RegisterRoutes(api, s.routes)
	}

	outer := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(cfg.Logger),
		httputil.RecoveryMiddleware,
	)
	s.handler = otelhttp.NewHandler(outer(s.router), "tenantadmin")

	return s, nil
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Routes returns the route permission table
func (s *Server) Routes() *rbac.RouteTable {
	return s.routes
}

// Guard returns the permission guard
func (s *Server) Guard() *rbac.Guard {
	return s.guard
}
