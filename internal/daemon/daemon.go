package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ghostline/ghostxp/internal/api"
	"github.com/ghostline/ghostxp/internal/app/leaderboard"
	"github.com/ghostline/ghostxp/internal/app/notify"
	"github.com/ghostline/ghostxp/internal/app/progression"
	"github.com/ghostline/ghostxp/internal/health"
	"github.com/ghostline/ghostxp/internal/infra/healing"
	"github.com/ghostline/ghostxp/internal/infra/store"
)

// Daemon is the ghostxp runtime. It wires together all services.
type Daemon struct {
	Config Config
	Log    *zap.Logger
	Store  *store.DB
	Engine *progression.Engine
	Ranker *leaderboard.Ranker
	Inbox  *notify.Dispatcher
	Health *health.Checker
	Server *api.Server

	mu        sync.Mutex
	addr      string
	cancel    context.CancelFunc
	bg        sync.WaitGroup
	closeOnce sync.Once
}

// New loads the configuration and creates a Daemon with all services wired.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates a Daemon from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}

	db, err := store.Open(ctx, store.Options{
		Driver:       cfg.Storage.Driver,
		Dir:          cfg.Storage.Dir,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		Logger:       logger.Named("store"),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	d := &Daemon{Config: cfg, Log: logger, Store: db}

	d.Inbox = notify.New(db,
		notify.WithLogger(logger.Named("notify")),
		notify.WithBuffer(cfg.Notifications.Buffer),
	)

	def := progression.DefaultRetryPolicy()
	d.Engine = progression.New(db,
		progression.WithLogger(logger.Named("progression")),
		progression.WithNotifier(d.Inbox),
		progression.WithLocation(loc),
		progression.WithRetry(progression.RetryPolicy{
			MaxAttempts: cfg.Engine.MaxAttempts,
			BaseDelay:   parseDuration(cfg.Engine.RetryBaseDelay, def.BaseDelay),
			MaxDelay:    parseDuration(cfg.Engine.RetryMaxDelay, def.MaxDelay),
		}),
		progression.WithQuestCounts(cfg.Engine.DailyQuestCount, cfg.Engine.WeeklyQuestCount),
	)

	d.Ranker = leaderboard.New(db,
		leaderboard.WithLogger(logger.Named("leaderboard")),
		leaderboard.WithLocation(loc),
		leaderboard.WithMaxLimit(cfg.Leaderboard.MaxLimit),
	)

	dataDir := ""
	if cfg.Storage.Driver == "" || cfg.Storage.Driver == store.DriverSQLite {
		dataDir = cfg.Storage.Dir
	}
	d.Health = health.NewChecker(db, dataDir,
		health.WithLogger(logger.Named("health")),
		health.WithCheck(health.Check{
			Name: "inbox_breaker",
			CheckFn: func(context.Context) error {
				if d.Inbox.Breaker().State() == healing.Open {
					return healing.ErrCircuitOpen
				}
				return nil
			},
		}),
	)

	d.Server = api.NewServer(d.Engine, d.Ranker, d.Inbox,
		api.WithHealth(d.Health),
		api.WithLogger(logger.Named("api")),
		api.WithRequestTimeout(parseDuration(cfg.Server.RequestTimeout, 15*time.Second)),
	)
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	return d, nil
}

// Addr returns the address the HTTP server is bound to, or "" before Serve
// has started listening.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Serve starts the background loops and the HTTP server and blocks until ctx
// is cancelled or SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	d.Inbox.Start()

	// ─── Background services ───────────────────────────────────────────

	d.goBackground(func() { d.Health.Run(ctx) })

	if every := parseDuration(d.Config.Leaderboard.Interval, 5*time.Minute); every > 0 {
		d.goBackground(func() { d.Ranker.Run(ctx, every) })
	} else {
		d.Log.Info("leaderboard schedule disabled")
	}

	if every := parseDuration(d.Config.Quests.SweepInterval, time.Minute); every > 0 {
		d.goBackground(func() { d.sweepQuests(ctx, every) })
	}

	// ─── HTTP ──────────────────────────────────────────────────────────

	addr := net.JoinHostPort(d.Config.Server.Host, strconv.Itoa(d.Config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	d.mu.Lock()
	d.addr = ln.Addr().String()
	d.mu.Unlock()

	httpServer := &http.Server{
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Serve(ln) }()

	d.Log.Info("ghostxp serving",
		zap.String("addr", ln.Addr().String()),
		zap.String("storage", d.Config.Storage.Driver),
		zap.Bool("metrics", d.Config.Telemetry.Prometheus),
	)

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		d.Log.Info("shutting down", zap.Stringer("signal", sig))
	case <-ctx.Done():
		d.Log.Info("shutting down", zap.Error(ctx.Err()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		d.Log.Warn("http shutdown", zap.Error(err))
	}
	d.bg.Wait()
	return serveErr
}

func (d *Daemon) goBackground(fn func()) {
	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		fn()
	}()
}

// sweepQuests expires overdue quests on every tick until ctx is done.
func (d *Daemon) sweepQuests(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Engine.SweepExpiredQuests(ctx); err != nil && ctx.Err() == nil {
				d.Log.Error("quest sweep failed", zap.Error(err))
			}
		}
	}
}

// Close shuts down all daemon resources. Safe to call more than once.
func (d *Daemon) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		cancel := d.cancel
		d.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		d.bg.Wait()
		if d.Inbox != nil {
			d.Inbox.Close()
		}
		if d.Store != nil {
			closeLogged(d.Log, "store", d.Store)
		}
		if d.Log != nil {
			_ = d.Log.Sync()
		}
	})
}

// closeLogged closes c and logs a failure at warn.
func closeLogged(log *zap.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil && log != nil {
		log.Warn(name+" close", zap.Error(err))
	}
}
