package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/tenantadmin/pkg/observability"
)

// ConnectionManager manages PostgreSQL primary and read replica connections
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	standby  []*sql.DB // failed a ping; re-probed by RestoreReplicas
	current  uint32    // Atomic counter for round-robin selection
	mu       sync.RWMutex
	config   ConnectionConfig
	logger   *observability.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// NewConnectionManager connects to the primary and every reachable replica.
// An unreachable primary is an error; unreachable replicas are skipped.
func NewConnectionManager(config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	cm := &ConnectionManager{
		config:   config,
		replicas: make([]*sql.DB, 0),
		logger:   logger,
	}

	primary, err := cm.open(config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary: %w", err)
	}
	cm.primary = primary

	for i, replicaURL := range config.ReplicaURLs {
		// Replicas get half the primary pool
		replicaMaxConns := config.MaxConns / 2
		if replicaMaxConns < 2 {
			replicaMaxConns = 2
		}

		replica, err := cm.open(replicaURL, replicaMaxConns)
		if err != nil {
			cm.log().WithField("replica", i).WithError(err).Warn("skipping unreachable replica")
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	cm.log().WithField("replicas", len(cm.replicas)).Info("database connection manager initialized")
	return cm, nil
}

// NewConnectionManagerFromDB wraps existing handles, mainly for tests
func NewConnectionManagerFromDB(primary *sql.DB, replicas ...*sql.DB) *ConnectionManager {
	return &ConnectionManager{primary: primary, replicas: replicas}
}

func (cm *ConnectionManager) open(url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cm.config.MinConns)
	db.SetConnMaxLifetime(cm.config.MaxLifetime)
	db.SetConnMaxIdleTime(cm.config.MaxIdleTime)

	timeout := cm.config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return db, nil
}

// Primary returns the primary database connection (for writes)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection
// Falls back to primary if no replicas are available
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}

	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// HealthCheck pings the primary and replicas. Losing some replicas is
// tolerated; losing all of them is reported.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}

	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}

	return nil
}

// Stats returns the primary pool statistics
func (cm *ConnectionManager) Stats() sql.DBStats {
	return cm.primary.Stats()
}

// RemoveUnhealthyReplicas takes replicas that fail a ping out of rotation.
// They stay open on standby until Close.
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	healthy := make([]*sql.DB, 0, len(cm.replicas))
	removed := 0

	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			cm.standby = append(cm.standby, replica)
			removed++
		} else {
			healthy = append(healthy, replica)
		}
	}

	cm.replicas = healthy
	return removed
}

// RestoreReplicas puts standby replicas that answer a ping back into rotation
func (cm *ConnectionManager) RestoreReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	still := make([]*sql.DB, 0, len(cm.standby))
	restored := 0

	for _, replica := range cm.standby {
		if err := replica.PingContext(ctx); err != nil {
			still = append(still, replica)
			continue
		}
		cm.replicas = append(cm.replicas, replica)
		restored++
	}

	cm.standby = still
	return restored
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	var errs []error

	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	cm.mu.Lock()
	replicas := append(cm.replicas, cm.standby...)
	cm.replicas = nil
	cm.standby = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// StartMaintenance runs until ctx is done. Every tick it drops unhealthy
// replicas, re-admits recovered ones and publishes pool stats.
func (cm *ConnectionManager) StartMaintenance(ctx context.Context, interval time.Duration, metrics *observability.Metrics) {
	if interval == 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		defer func() {
			if r := recover(); r != nil {
				cm.log().WithField("panic", r).WithField("stack", string(debug.Stack())).Error("database maintenance panicked")
			}
		}()

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				restored := cm.RestoreReplicas(checkCtx)
				removed := cm.RemoveUnhealthyReplicas(checkCtx)
				cancel()

				if removed > 0 {
					cm.log().WithField("removed", removed).Warn("removed unhealthy replicas")
				}
				if restored > 0 {
					cm.log().WithField("restored", restored).Info("restored recovered replicas")
				}
				metrics.RecordDBStats(cm.Stats())

			case <-ctx.Done():
				return
			}
		}
	}()
}

func (cm *ConnectionManager) log() *observability.Logger {
	if cm.logger == nil {
		return observability.GetLogger(context.Background())
	}
	return cm.logger
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLsStr string) []string {
	if replicaURLsStr == "" {
		return nil
	}

	urls := strings.Split(replicaURLsStr, ",")
	result := make([]string, 0, len(urls))

	for _, url := range urls {
		trimmed := strings.TrimSpace(url)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
