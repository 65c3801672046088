package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/phcodesage/trail-zap/internal/config"
	"github.com/phcodesage/trail-zap/internal/db"
	"github.com/phcodesage/trail-zap/internal/logger"
	"github.com/phcodesage/trail-zap/internal/server"
	"github.com/phcodesage/trail-zap/internal/storage"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	openLocal       func(config.Config) (*sql.DB, error)
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	openPostgres    func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, Resources, <-chan os.Signal, ListenFunc) error
}

// Resources are the connections Run takes ownership of.
type Resources struct {
	Local    *sql.DB
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		openLocal:       db.OpenSQLite,
		connectPostgres: db.ConnectPostgres,
		openPostgres:    db.OpenPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Error("invalid configuration")
		return
	}
	logger.Setup(cfg)

	local, err := deps.openLocal(cfg)
	if err != nil {
		logrus.WithError(err).Error("local database unavailable")
		return
	}

	// The app works offline; an unreachable backend gets a lazy pool that
	// dials on first use.
	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		logrus.WithError(err).Warn("postgres unreachable, continuing offline")
		pg, err = deps.openPostgres(cfg)
		if err != nil {
			logrus.WithError(err).Warn("postgres disabled")
			pg = nil
		}
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	res := Resources{Local: local, Postgres: pg, Redis: rdb}
	if err := deps.run(context.Background(), cfg, res, signals, nil); err != nil {
		logrus.WithError(err).Error("server exited with error")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, res Resources, signals <-chan os.Signal, listen ListenFunc) error {
	defer res.close()

	store, err := storage.New(ctx, res.Local)
	if err != nil {
		return err
	}
	srv, err := server.NewServer(cfg, res.Postgres, res.Redis, store)
	if err != nil {
		return err
	}
	defer srv.Close()

	bgCtx, stop := context.WithCancel(ctx)
	defer stop()
	srv.Start(bgCtx)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return shutdownFn(srv.App, shutdownCtx)
}

func (r Resources) close() {
	if r.Postgres != nil {
		r.Postgres.Close()
	}
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if r.Local != nil {
		_ = r.Local.Close()
	}
}
