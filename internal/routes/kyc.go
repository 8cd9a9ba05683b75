package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bondify/bondify/internal/kyc"
)

// RegisterKYCRoutes wires verification endpoints. Submissions pass through
// the per-user limiter.
func RegisterKYCRoutes(r fiber.Router, h *kyc.Handler, limiter fiber.Handler) {
	r.Post("/users/:userId/verifications", limiter, h.Submit)
	r.Get("/users/:userId/verifications", h.History)
	r.Get("/verifications/:verificationId", h.Get)
	r.Post("/verifications/:verificationId/resolve", h.Resolve)
}
