package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/bondify/bondify/internal/domain"
)

// contentionRetryAfter is the Retry-After hint, in seconds, sent with 503s.
const contentionRetryAfter = "1"

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrKYCRequired):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientHolding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDuplicateSubmission),
		errors.Is(err, domain.ErrBondFullySubscribed),
		errors.Is(err, domain.ErrAlreadyMatured),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrContention):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error as {"error", "code"}. Internal errors are
// logged and their message is not exposed.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusFor(err)
		code := domain.Kind(err)
		msg := err.Error()

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = http.StatusText(fe.Code)
			msg = fe.Message
		} else if status == http.StatusInternalServerError {
			logger.Error("unhandled error", "path", c.Path(), "error", err)
			msg = http.StatusText(status)
		}
		if status == http.StatusServiceUnavailable {
			c.Set(fiber.HeaderRetryAfter, contentionRetryAfter)
		}
		return c.Status(status).JSON(fiber.Map{"error": msg, "code": code})
	}
}
