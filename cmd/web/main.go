package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/donseba/go-htmx"
	"github.com/joho/godotenv"
	"github.com/myrjola/mavis/internal/envstruct"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/logging"
	"github.com/myrjola/mavis/internal/playground"
	"github.com/myrjola/mavis/internal/pprofserver"
	"github.com/myrjola/mavis/internal/script"
	"github.com/myrjola/mavis/internal/sqlite"
	"github.com/myrjola/mavis/internal/telemetry"
)

type application struct {
	logger         *slog.Logger
	sessionManager *scs.SessionManager
	db             *sqlite.Database
	playground     *playground.Manager
	htmx           *htmx.HTMX
	limiter        *visitorRateLimiter
	// shuttingDown is closed when the server starts shutting down so that event streams let go of their connections.
	shuttingDown chan struct{}
}

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"MAVIS_ADDR" envDefault:"localhost:4000"`
	// SqliteURL is the URL to the SQLite database holding the sessions. You can use ":memory:" for an ephemeral
	// in-memory database.
	SqliteURL string `env:"MAVIS_SQLITE_URL" envDefault:"./mavis.sqlite"`
	// ScriptPath is the timeline script to play. The embedded MAVIS script is used when empty.
	ScriptPath string `env:"MAVIS_SCRIPT_PATH" envDefault:""`
	// PprofAddr is the loopback address of the pprof listener. Profiling is disabled when empty.
	PprofAddr string `env:"MAVIS_PPROF_ADDR" envDefault:""`
	// Speedup divides every scripted delay. Tests use a large value.
	Speedup int `env:"MAVIS_SPEEDUP" envDefault:"1"`
	// SessionLifetime is how long a visitor keeps their planning session.
	SessionLifetime time.Duration `env:"MAVIS_SESSION_LIFETIME" envDefault:"12h"`
	// IdleRunnerTTL is how long an untouched run is kept in memory.
	IdleRunnerTTL time.Duration `env:"MAVIS_IDLE_RUNNER_TTL" envDefault:"30m"`
	// MaxRunners caps the number of runs kept in memory.
	MaxRunners int `env:"MAVIS_MAX_RUNNERS" envDefault:"1000"`
	// RateLimit is the number of mutating requests per second allowed per visitor.
	RateLimit int `env:"MAVIS_RATE_LIMIT" envDefault:"10"`
	// RateBurst is the burst size of the per-visitor rate limiter.
	RateBurst int `env:"MAVIS_RATE_BURST" envDefault:"20"`
	// MetricsInterval is how often the playground metrics are logged. Zero disables the log line; the metrics stay
	// available at /debug/metrics on the pprof listener.
	MetricsInterval time.Duration `env:"MAVIS_METRICS_INTERVAL" envDefault:"1m"`
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		err error
		cfg config
	)
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var s *script.Script
	if s, err = script.LoadFileOrDefault(cfg.ScriptPath); err != nil {
		return errors.Wrap(err, "load timeline script", slog.String("path", cfg.ScriptPath))
	}

	var telemetryProvider *telemetry.Provider
	if telemetryProvider, err = telemetry.NewProvider(); err != nil {
		return errors.Wrap(err, "create telemetry provider")
	}
	defer func() {
		if shutdownErr := telemetryProvider.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to shut down telemetry", errors.SlogError(shutdownErr))
		}
	}()
	if cfg.MetricsInterval > 0 {
		go telemetryProvider.LogPeriodically(ctx, logger, cfg.MetricsInterval)
	}

	if cfg.PprofAddr != "" {
		if err = pprofserver.Launch(ctx, cfg.PprofAddr, logger, telemetryProvider); err != nil {
			return errors.Wrap(err, "launch pprof server")
		}
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, cfg.SqliteURL, logger); err != nil {
		return errors.Wrap(err, "open database", slog.String("sqlite_url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close database", errors.SlogError(closeErr))
		}
	}()

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.New(db.ReadWrite.DB)
	sessionManager.Lifetime = cfg.SessionLifetime
	sessionManager.Cookie.Secure = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode

	var manager *playground.Manager
	if manager, err = playground.NewManager(s, logger, telemetryProvider.Metrics, playground.Options{
		Speedup:    cfg.Speedup,
		IdleTTL:    cfg.IdleRunnerTTL,
		MaxRunners: cfg.MaxRunners,
		Now:        time.Now,
	}); err != nil {
		return errors.Wrap(err, "create playground")
	}
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		if runErr := manager.Run(ctx); runErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "playground stopped", errors.SlogError(runErr))
		}
	}()

	limiter := newVisitorRateLimiter(cfg.RateLimit, cfg.RateBurst)
	go limiter.cleanup(ctx)

	app := application{
		logger:         logger,
		sessionManager: sessionManager,
		db:             db,
		playground:     manager,
		htmx:           htmx.New(),
		limiter:        limiter,
		shuttingDown:   make(chan struct{}),
	}

	err = app.configureAndStartServer(ctx, cfg.Addr)
	cancel()
	<-managerDone
	if err != nil {
		return errors.Wrap(err, "start server")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)

	// A missing .env file is fine, the environment may be configured directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "failed to load .env file", errors.SlogError(err))
		os.Exit(1) //nolint:gocritic // stop is not needed when exiting
	}

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		stop()
		os.Exit(1)
	}
	stop()
}
