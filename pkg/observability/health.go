package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// HealthChecker reports liveness and dependency readiness
type HealthChecker struct {
	db      *sql.DB
	redis   *redis.Client
	version string
}

// NewHealthChecker creates a new health checker. Either dependency may be nil.
func NewHealthChecker(db *sql.DB, redis *redis.Client, version string) *HealthChecker {
	return &HealthChecker{
		db:      db,
		redis:   redis,
		version: version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Liveness always returns 200 while the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   h.version,
	})
}

// Readiness checks every dependency; 503 when any is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	code := http.StatusOK
	if status.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

// Check pings Postgres and Redis. Both back authorization decisions, so
// either being down makes the service unready.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.db != nil {
		status.Dependencies["database"] = probe(func() error { return h.db.PingContext(ctx) })
	}
	if h.redis != nil {
		status.Dependencies["redis"] = probe(func() error { return h.redis.Ping(ctx).Err() })
	}

	for _, dep := range status.Dependencies {
		if dep.Status != StatusHealthy {
			status.Status = StatusUnhealthy
		}
	}
	return status
}

func probe(ping func() error) DependencyStatus {
	start := time.Now()
	err := ping()
	dep := DependencyStatus{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
		Timestamp: time.Now(),
	}
	if err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	return dep
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(serveMux *http.ServeMux, checker *HealthChecker) {
	serveMux.HandleFunc("/healthz", checker.Liveness)
	serveMux.HandleFunc("/readyz", checker.Readiness)
}
