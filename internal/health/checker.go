// Package health provides periodic health checks with optional recovery hooks.
// Results back the /health endpoint and the mindcamp_health_status gauge.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/mindcamp/mindcamp/internal/infra/metrics"
	"github.com/mindcamp/mindcamp/internal/infra/sqlite"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker for the store and data dir.
// rdb may be nil when Redis is not configured.
func NewChecker(db *sqlite.DB, dataDir string, rdb *redis.Client) *Checker {
	c := &Checker{
		interval: 30 * time.Second,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "data_dir",
				CheckFn: func(ctx context.Context) error {
					return checkWritable(dataDir)
				},
				RecoverFn: func(ctx context.Context) error {
					return os.MkdirAll(dataDir, 0o755)
				},
			},
		},
	}
	if rdb != nil {
		c.checks = append(c.checks, Check{
			Name: "redis",
			CheckFn: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		})
	}
	return c
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce executes every check and stores the results.
func (c *Checker) RunOnce(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now().UTC(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			logrus.WithField("check", check.Name).WithError(err).Warn("health check failed")
			if check.RecoverFn != nil {
				if rerr := check.RecoverFn(ctx); rerr != nil {
					logrus.WithField("check", check.Name).WithError(rerr).Warn("health recovery failed")
				} else {
					logrus.WithField("check", check.Name).Info("health recovery applied")
				}
			}
			metrics.HealthStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}
