package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bondify/bondify/internal/bonds"
	"github.com/bondify/bondify/internal/config"
	"github.com/bondify/bondify/internal/identity"
	"github.com/bondify/bondify/internal/kyc"
	"github.com/bondify/bondify/internal/ledger"
	"github.com/bondify/bondify/internal/notification"
	"github.com/bondify/bondify/internal/routes"
	"github.com/bondify/bondify/internal/scheduler"
	"github.com/bondify/bondify/internal/store"
)

// Server wraps the Fiber application, the sweep scheduler and shared
// dependencies.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	db        *pgxpool.Pool
	cache     *redis.Client
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

// New instantiates the HTTP server. Without a database pool the ledger runs
// on the in-memory store, which only config allows in development.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, notifier notification.Notifier, logger *slog.Logger) (*Server, error) {
	var st store.Store
	if db != nil {
		st = store.NewPostgres(db, store.PostgresOptions{LockTimeout: cfg.LockTimeout, MaxRetries: cfg.TxMaxRetries})
	} else {
		logger.Warn("no database configured, using in-memory store")
		st = store.NewMemory(cfg.LockTimeout)
	}
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}

	bondSvc := bonds.NewService(st, logger)
	ledgerSvc := ledger.NewService(st, notifier, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: routes.ErrorHandler(logger),
	})

	err := routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Logger:   logger,
		Identity: identity.NewService(st),
		KYC:      kyc.NewService(st, logger),
		Bonds:    bondSvc,
		Ledger:   ledgerSvc,
	})
	if err != nil {
		return nil, err
	}

	jobs := scheduler.NewJobs(bondSvc, ledgerSvc, st, logger, cfg.MaturityConcurrency)
	sched := scheduler.New(jobs, scheduler.Config{
		WindowSweepSchedule:   cfg.WindowSweepSchedule,
		MaturitySweepSchedule: cfg.MaturitySweepSchedule,
		MaturityConcurrency:   cfg.MaturityConcurrency,
	}, logger)

	return &Server{app: app, cfg: cfg, db: db, cache: cache, scheduler: sched, logger: logger}, nil
}

// App exposes the fiber application for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the sweep scheduler and then the HTTP server.
func (s *Server) Listen() error {
	if err := s.scheduler.Start(); err != nil {
		return err
	}
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops accepting requests, then waits for running sweeps within
// the same deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	select {
	case <-s.scheduler.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler did not stop before shutdown deadline")
	}
	return err
}
