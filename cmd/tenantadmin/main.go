package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantadmin/pkg/api"
	"github.com/platinummonkey/tenantadmin/pkg/auth"
	"github.com/platinummonkey/tenantadmin/pkg/config"
	"github.com/platinummonkey/tenantadmin/pkg/modules"
	"github.com/platinummonkey/tenantadmin/pkg/observability"
	"github.com/platinummonkey/tenantadmin/pkg/rbac"
	"github.com/platinummonkey/tenantadmin/pkg/storage"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("tenantadmin exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Observability.OTel.ServiceVersion = version
	otel, err := observability.InitOTel(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := otel.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to flush telemetry")
		}
	}()

	registry, err := modules.Default()
	if err != nil {
		return err
	}

	cm, err := storage.NewConnectionManager(cfg.Database.ConnectionConfig, logger)
	if err != nil {
		return err
	}
	defer cm.Close()

	if cfg.Database.RunMigrations {
		if err := rbac.RunMigrations(ctx, cm.Primary(), logger); err != nil {
			return err
		}
		if err := rbac.SeedPermissions(ctx, cm.Primary(), registry, logger); err != nil {
			return err
		}
	}

	var rdb *redis.Client
	if cfg.Impersonation.Enabled {
		rdb, err = storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(promRegistry)
	}

	server, err := api.NewServer(api.Config{
		Registry:         registry,
		Verifier:         verifier,
		DB:               cm.Primary(),
		ReadDB:           cm.Reader(),
		Redis:            rdb,
		ImpersonationTTL: cfg.Impersonation.SessionTTL,
		RoleCacheSize:    cfg.RBAC.RoleCacheSize,
		RoleCacheTTL:     cfg.RBAC.RoleCacheTTL,
		StorePolicy:      cfg.RBAC.StoreErrorPolicy,
		AuditEnabled:     cfg.Audit.Enabled,
		AuditLogEvents:   cfg.Audit.LogEvents,
		Logger:           logger,
		Metrics:          metrics,
		Version:          version,
	})
	if err != nil {
		return err
	}

	cm.StartMaintenance(ctx, cfg.Database.MaintenanceInterval, metrics)

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(cm.Primary(), rdb, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, promRegistry)
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.HealthAddr(),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		srv := srv
		g.Go(func() error {
			logger.WithField("addr", srv.Addr).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), healthServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.TokenVerifier, error) {
	switch cfg.Mode {
	case config.AuthModeHMAC:
		return auth.NewHMACVerifier(cfg.HMAC), nil
	case config.AuthModeOIDC:
		return auth.NewOIDCVerifier(ctx, cfg.OIDC)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
