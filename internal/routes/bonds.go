package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bondify/bondify/internal/bonds"
)

// RegisterBondRoutes wires issuance and catalogue endpoints.
func RegisterBondRoutes(r fiber.Router, h *bonds.Handler) {
	r.Post("/bonds", h.Issue)
	r.Get("/bonds", h.List)
	r.Get("/bonds/:bondId", h.Get)
}
