package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bondify/bondify/internal/ledger"
)

// RegisterLedgerRoutes wires subscription, transfer and maturity endpoints.
// Mutations require an Idempotency-Key when a cache is configured.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler, idempotent fiber.Handler) {
	r.Post("/bonds/:bondId/subscriptions", idempotent, h.Subscribe)
	r.Post("/bonds/:bondId/transfers", idempotent, h.Transfer)
	r.Post("/bonds/:bondId/mature", h.Mature)
	r.Get("/bonds/:bondId/holders", h.Holders)
	r.Get("/bonds/:bondId/holders/:userId", h.Holding)
	r.Get("/bonds/:bondId/events", h.Events)
	r.Get("/bonds/:bondId/reconcile", h.Reconcile)
}
