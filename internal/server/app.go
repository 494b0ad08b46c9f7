// Package server initializes and runs the authkeeper server.
// It selects the storage backend, applies migrations, wires the services
// and serves the HTTP API until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpserver"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// maxConnectRetries bounds the startup wait for the database.
const maxConnectRetries = 10

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	http   *httpserver.HTTPServer
}

// Backend is a storage backend ready for the services.
type Backend struct {
	Tx       dbx.Transactor
	Repos    repomanager.RepositoryManager
	DB       *sql.DB
	InMemory bool
}

// OpenBackend connects to the configured store. For PostgreSQL it waits
// for the database with exponential backoff and applies migrations.
func OpenBackend(ctx context.Context, c *config.Config, logger logging.Logger) (*Backend, error) {
	if c.StorageMode == config.StorageMemory {
		logger.Warn(ctx, "using in-memory storage, all data is lost on exit")
		store := memory.NewStore()
		return &Backend{Tx: store, Repos: store, InMemory: true}, nil
	}

	db, err := openDatabase(ctx, c.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	return &Backend{Tx: dbx.NewSQLTransactor(db, nil), Repos: rm, DB: db}, nil
}

func openDatabase(ctx context.Context, dsn string, logger logging.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	notify := func(err error, next time.Duration) {
		metrics.DBConnectRetries.Inc()
		logger.Warn(ctx, "database not ready, retrying", "error", err, "next_attempt_in", next)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxConnectRetries), ctx)
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db connect error: %w", err)
	}
	return db, nil
}

// NewHasher builds the password hasher from the configured argon2 cost.
func NewHasher(c *config.Config) (*auth.Hasher, error) {
	p := auth.DefaultHasherParams
	p.Memory = c.Argon2Memory
	p.Time = c.Argon2Time
	p.Parallelism = c.Argon2Parallelism
	return auth.NewHasher(p)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	metrics.Register(nil)

	backend, err := OpenBackend(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	hasher, err := NewHasher(c)
	if err != nil {
		return nil, fmt.Errorf("hasher init error: %w", err)
	}

	as, err := services.NewAuthService(backend.Tx, backend.Repos, hasher, c, logger.With("module", "auth"))
	if err != nil {
		return nil, err
	}
	us := services.NewUserService(backend.Tx, backend.Repos, hasher, logger.With("module", "users"))

	return &App{
		config: c,
		logger: logger,
		db:     backend.DB,
		http:   httpserver.NewHTTPServer(c.EndpointAddrHTTP, logger, as, us, c.ShutdownTimeout),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves HTTP until a termination signal or a server failure.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	err := app.http.Run(ctx)
	if err != nil {
		app.logger.Error(ctx, "http server stopped", "error", err)
	}

	if app.db != nil {
		if cerr := app.db.Close(); cerr != nil {
			app.logger.Error(ctx, "db close error", "error", cerr)
		}
	}

	app.logger.Info(ctx, "App stopped")
	return err
}
