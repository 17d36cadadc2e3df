// Package api assembles the tenant administration HTTP API.
//
// # Overview
//
// Every route lives under /api/v1 and is mounted through an rbac.RouteTable,
// which records the permissions the route declares. Requests then pass two
// guards in order:
//
//   - the authentication guard (pkg/middleware) verifies the bearer token,
//     loads the local user, resolves impersonation and stores the acting
//     context
//   - the permission guard (pkg/rbac) looks up the matched route's declared
//     permissions and checks them against the acting context
//
// Routes that declare no permissions only require authentication.
//
// # Middleware Order
//
// Outside the router: otelhttp, request id, logging, panic recovery. Inside
// the router (after matching, so the route template is known): Prometheus
// metrics, authentication, permissions.
//
// # Usage
//
//	srv, err := api.NewServer(api.Config{
//		Registry: registry,
//		Verifier: verifier,
//		DB:       cm.Primary(),
//		ReadDB:   cm.Reader(),
//		Redis:    redisClient,
//		Logger:   logger,
//		Metrics:  metrics,
//	})
//	http.ListenAndServe(":8080", srv.Handler())
package api
