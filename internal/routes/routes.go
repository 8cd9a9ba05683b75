package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bondify/bondify/internal/bonds"
	"github.com/bondify/bondify/internal/config"
	"github.com/bondify/bondify/internal/identity"
	"github.com/bondify/bondify/internal/kyc"
	"github.com/bondify/bondify/internal/ledger"
	"github.com/bondify/bondify/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	Identity *identity.Service
	KYC      *kyc.Service
	Bonds    *bonds.Service
	Ledger   *ledger.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Identity == nil || d.KYC == nil || d.Bonds == nil || d.Ledger == nil {
		return fmt.Errorf("routes: all services must be provided")
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterIdentityRoutes(api, identity.NewHandler(d.Identity))
	RegisterKYCRoutes(api, kyc.NewHandler(d.KYC), middleware.KYCSubmitRateLimit(d.Cache, d.Cfg.KYCSubmitPerMinute, d.Logger))
	RegisterBondRoutes(api, bonds.NewHandler(d.Bonds))
	RegisterLedgerRoutes(api, ledger.NewHandler(d.Ledger), middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))

	return nil
}
