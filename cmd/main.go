package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/rocketstat/internal/adapters/http/api"
	"github.com/okian/rocketstat/internal/adapters/http/swagger"
	repository "github.com/okian/rocketstat/internal/adapters/repository"
	app "github.com/okian/rocketstat/internal/app"
	"github.com/okian/rocketstat/internal/config"
	"github.com/okian/rocketstat/pkg/logger"
	"github.com/okian/rocketstat/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := newService(cfg, loggerInstance)
	if err != nil {
		loggerInstance.Error(ctx, "invalid player configuration", logger.Error(err))
		return
	}
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		_ = svc.Stop(context.Background())
		return
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	reload := newReloader(svc, cfg)
	stopWatch, err := config.Watch(ctx, func(next *config.Config) {
		reload.apply(ctx, next)
	})
	switch {
	case errors.Is(err, config.ErrNoConfigFile):
		loggerInstance.Info(ctx, "no config file; hot reload disabled")
	case err != nil:
		loggerInstance.Warn(ctx, "config watch failed; hot reload disabled", logger.Error(err))
	default:
		defer stopWatch()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.Int("players", svc.EngineCount()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// newService builds the service from cfg without starting it.
func newService(cfg *config.Config, l logger.Logger) (*app.Service, error) {
	records, err := cfg.Records()
	if err != nil {
		return nil, err
	}
	return app.New(
		app.WithLogger(l),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithPersistTimeout(cfg.PersistTimeout),
		app.WithStorage(
			repository.WithPath(cfg.Storage.Path),
			repository.WithInMemory(cfg.Storage.InMemory),
			repository.WithSyncWrites(cfg.Storage.SyncWrites),
			repository.WithGCInterval(cfg.Storage.GCInterval),
			repository.WithGCDiscardRatio(cfg.Storage.GCDiscardRatio),
			repository.WithLogger(l.Named("store")),
		),
		app.WithPlayers(records...),
	), nil
}

// newMux registers the docs and business routes.
func newMux(ctx context.Context, svc *app.Service, cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithStreamBuffer(cfg.StreamBuffer),
		api.WithAllowedOrigins(cfg.StreamOrigins...),
	).Register(mux)
	return mux
}

// reloader applies reloaded config files. The player set and log level
// change live; listener, storage, pool and stream settings need a restart.
type reloader struct {
	svc *app.Service

	mu      sync.Mutex
	running *config.Config // what the process started with
	last    *config.Config // last config applied
}

func newReloader(svc *app.Service, cfg *config.Config) *reloader {
	return &reloader{svc: svc, running: cfg, last: cfg}
}

// apply reconciles the service with next and reports whether it warned that
// a restart is needed. The warning is given once per distinct change.
func (r *reloader) apply(ctx context.Context, next *config.Config) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := logger.Get()
	if err := logger.SetLevelString(next.LogLevel); err != nil {
		l.Warn(ctx, "invalid log_level on reload", logger.String("log_level", next.LogLevel), logger.Error(err))
	}

	records, err := next.Records()
	if err != nil {
		l.Warn(ctx, "reloaded players rejected", logger.Error(err))
		return false
	}
	if err := r.svc.Reconcile(ctx, records); err != nil {
		l.Error(ctx, "player reconcile failed", logger.Error(err))
	}

	warn := restartNeeded(r.running, next) && restartNeeded(r.last, next)
	if warn {
		l.Warn(ctx, "listener, storage, pool or stream settings changed; restart to apply")
	}
	r.last = next
	l.Info(ctx, "configuration reloaded", logger.Int("players", r.svc.EngineCount()))
	return warn
}

// restartNeeded reports whether a and b differ in settings read only at startup.
func restartNeeded(a, b *config.Config) bool {
	return a.Addr != b.Addr || a.Storage != b.Storage ||
		a.QueueSize != b.QueueSize || a.WorkerCount != b.WorkerCount ||
		a.StreamBuffer != b.StreamBuffer || !slices.Equal(a.StreamOrigins, b.StreamOrigins)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes gauges that only change on the slow path.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if engines, ok := stats["engines"].(int); ok {
		metrics.UpdateEngineCount(engines)
	}
	if populated, ok := stats["populated"].(int); ok {
		metrics.UpdatePopulatedCount(populated)
	}
}
