package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/mindcamp/mindcamp/internal/api"
	"github.com/mindcamp/mindcamp/internal/app/clock"
	"github.com/mindcamp/mindcamp/internal/app/engagement"
	"github.com/mindcamp/mindcamp/internal/domain"
	"github.com/mindcamp/mindcamp/internal/health"
	"github.com/mindcamp/mindcamp/internal/infra/cache"
	"github.com/mindcamp/mindcamp/internal/infra/sqlite"
)

// Daemon is the core mindcamp runtime. It wires together all services.
type Daemon struct {
	Config     Config
	DB         *sqlite.DB
	Redis      *redis.Client // nil when redis.addr is empty
	Clock      *clock.Provider
	Engagement *engagement.Service
	Health     *health.Checker
	Server     *api.Server
	cancel     context.CancelFunc
	log        *logrus.Entry
}

// New creates and initializes a Daemon with all services wired.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(ctx, cfg, Home())
}

// NewWithConfig creates a Daemon storing its data under dataDir.
func NewWithConfig(ctx context.Context, cfg Config, dataDir string) (*Daemon, error) {
	if err := ConfigureLogging(cfg.Logging); err != nil {
		return nil, err
	}
	log := logrus.WithField("component", "daemon")

	db, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{
		Config: cfg,
		DB:     db,
		Clock:  clock.NewProvider(clock.System{}, cfg.Clock.AllowVirtual),
		log:    log,
	}

	// Redis is optional. Without it snapshots are read from sqlite and the
	// debug rate limit is per process.
	var snapshots domain.SnapshotCache
	var limiter api.RateLimiter = cache.NewMemoryLimiter(nil)
	if cfg.Redis.Addr != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		rdb, err := cache.Connect(connectCtx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cancel()
		if err != nil {
			db.Close()
			return nil, err
		}
		d.Redis = rdb
		snapshots = cache.NewSnapshotCache(rdb, cfg.Redis.SnapshotTTL)
		limiter = cache.NewRedisLimiter(rdb)
	}
	if cfg.Clock.AllowVirtual {
		log.Warn("virtual time is enabled for all callers; do not run this in production")
	}

	d.Engagement = engagement.NewService(db, d.Clock, snapshots, engagement.Config{
		MinWords:     cfg.Mechanics.MinWords,
		LookbackDays: cfg.Mechanics.LookbackDays,
	})
	d.Health = health.NewChecker(db, dataDir, d.Redis)

	srv := api.NewServer(d.Engagement)
	srv.SetHealth(d.Health)
	srv.SetRequestTimeout(cfg.API.RequestTimeout)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	if cfg.Debug.Enabled {
		var audit domain.AuditSink
		if cfg.Debug.AuditToDB {
			audit = db
		}
		srv.SetDebugGuard(api.NewDebugGuard(api.DebugConfig{
			Enabled:        true,
			AllowHeavy:     cfg.Debug.AllowHeavy,
			RequireConfirm: cfg.Debug.RequireConfirm,
			ConfirmToken:   cfg.Debug.ConfirmToken,
			RateLimit:      cfg.Debug.RateLimit,
			RateWindow:     cfg.Debug.RateWindow,
			AuditToLog:     cfg.Debug.AuditToLog,
		}, limiter, audit))
		log.Warn("admin debug tools are enabled")
	}
	d.Server = srv

	return d, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Health checker (always runs)
	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      d.Config.API.RequestTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			d.log.Info("shutdown signal received")
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	d.log.WithFields(logrus.Fields{
		"addr":          addr,
		"redis":         d.Redis != nil,
		"metrics":       d.Config.Telemetry.Prometheus,
		"debug":         d.Config.Debug.Enabled,
		"allow_virtual": d.Config.Clock.AllowVirtual,
	}).Info("mindcamp serving")

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
