// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing and health probes.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("customer_id", id).Info("customer created")
//
// Request-scoped loggers are stored in the context by httputil.LoggingMiddleware
// and retrieved with FromContext, which adds request_id and user_id fields.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("superadmin", "allow", elapsed)
//
// A nil *Metrics is accepted everywhere and records nothing, which keeps tests
// free of registry setup.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
//
// Tracer returns the service tracer; the permission guard opens one span per
// evaluation.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(serveMux, checker)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
