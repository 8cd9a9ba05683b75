package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bondify/bondify/internal/identity"
)

// RegisterIdentityRoutes wires user endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/users", h.Register)
	r.Get("/users/:userId", h.Get)
}
