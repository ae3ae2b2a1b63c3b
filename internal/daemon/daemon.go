package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hearthboard/awards/internal/api"
	"github.com/hearthboard/awards/internal/app/batch"
	"github.com/hearthboard/awards/internal/health"
	"github.com/hearthboard/awards/internal/infra/catalog"
	"github.com/hearthboard/awards/internal/infra/events"
	"github.com/hearthboard/awards/internal/infra/sqlite"
)

// Daemon is the core awardd runtime. It wires together all services.
type Daemon struct {
	Config  Config
	Logger  *slog.Logger
	DB      *sqlite.DB
	Catalog *catalog.Static
	Manager *batch.Manager
	Server  *api.Server
	Health  *health.Checker
	Limiter *api.RateLimiter

	// Set only when events.redis_url is configured.
	Redis    *redis.Client
	Consumer *events.Consumer

	cancel context.CancelFunc
}

// New creates and initializes a Daemon from the on-disk configuration.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg, os.Stderr)
}

// NewWithConfig creates a Daemon with the given configuration. Logs go to
// logOut.
func NewWithConfig(cfg Config, logOut io.Writer) (*Daemon, error) {
	logger, err := NewLogger(cfg.Logging, logOut)
	if err != nil {
		return nil, err
	}
	batchCfg, err := cfg.Evaluation.Batch()
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	dataDir := cfg.Storage.Dir
	if dataDir == "" {
		dataDir = awarddHome()
	}
	db, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetHistoryDays(cfg.Storage.HistoryDays)

	mgr := batch.NewManager(batchCfg, batch.Deps{
		Source:      db,
		Catalog:     cat,
		Store:       db,
		Multipliers: db,
		Notifier:    db,
		Logger:      logger,
	})

	srv := api.NewServer(mgr, db, cat, logger)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	d := &Daemon{
		Config:  cfg,
		Logger:  logger.With("component", "daemon"),
		DB:      db,
		Catalog: cat,
		Manager: mgr,
		Server:  srv,
	}

	if cfg.RateLimit.RPS > 0 {
		d.Limiter = api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		srv.SetRateLimiter(d.Limiter)
	}

	d.Health = health.NewChecker(db, dataDir, cat, mgr.Pending, cfg.Evaluation.MaxBacklog)
	srv.SetHealth(d.Health)

	if cfg.Events.RedisURL != "" {
		client, err := events.ConnectRedis(cfg.Events.RedisURL)
		if err != nil {
			db.Close()
			return nil, err
		}
		d.Redis = client
		d.Consumer = events.NewConsumer(client, cfg.Events.ConsumerConfig(), mgr, logger)
		d.Health.AddCheck(health.Check{
			Name:      "redis",
			CheckFn:   d.Consumer.Check,
			RecoverFn: d.Consumer.EnsureGroup,
		})
	}

	d.Logger.Info("daemon initialized",
		"catalog", cat.Source(),
		"awards", cat.Len(),
		"data_dir", dataDir,
		"debounce", batchCfg.Debounce,
		"max_wait", batchCfg.MaxWait)
	return d, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	if err := d.Manager.Start(ctx); err != nil {
		return err
	}

	go d.Health.Run(ctx)
	if d.Limiter != nil {
		go d.Limiter.Run(ctx)
	}

	if d.Consumer != nil {
		if err := d.Consumer.EnsureGroup(ctx); err != nil {
			return fmt.Errorf("event stream: %w", err)
		}
		go func() {
			if err := d.Consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.Logger.Warn("event consumer stopped", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", d.Config.Server.Host, d.Config.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		d.Manager.Stop()
	}()

	d.Logger.Info("serving", "addr", "http://"+addr, "metrics", d.Config.Telemetry.Prometheus,
		"events", d.Consumer != nil)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		cancel()
		<-done
		return err
	}
	<-done
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Manager != nil {
		d.Manager.Stop()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
