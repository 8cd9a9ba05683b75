package kyc

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bondify/bondify/internal/domain"
)

// Handler exposes verification endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a KYC HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type submitRequest struct {
	NationalID       int64  `json:"national_id"`
	NationalIDHash   string `json:"national_id_hash"`
	DateOfBirth      string `json:"date_of_birth"`
	CustodialAddress string `json:"custodial_address"`
}

type resolveRequest struct {
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason"`
	TxDigest string `json:"tx_digest"`
}

type verificationResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	DateOfBirth      string    `json:"date_of_birth"`
	Age              *int      `json:"age,omitempty"`
	CustodialAddress string    `json:"custodial_address"`
	TxDigest         *string   `json:"tx_digest,omitempty"`
	Status           string    `json:"status"`
	Reason           *string   `json:"reason,omitempty"`
	RequestID        *string   `json:"request_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toResponse(v domain.EKYCVerification) verificationResponse {
	return verificationResponse{
		ID:               v.ID,
		UserID:           v.UserID,
		DateOfBirth:      v.DateOfBirth.Format(time.DateOnly),
		Age:              v.Age,
		CustodialAddress: v.CustodialAddress,
		TxDigest:         v.TxDigest,
		Status:           string(v.Status),
		Reason:           v.Reason,
		RequestID:        v.RequestID,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
}

// Submit opens a verification for the user in the path.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	dob, err := time.Parse(time.DateOnly, req.DateOfBirth)
	if err != nil {
		return domain.Invalid("date_of_birth must be YYYY-MM-DD")
	}
	reqID, _ := c.Locals("X-Request-ID").(string)
	v, err := h.service.Submit(c.UserContext(), SubmitInput{
		UserID:           c.Params("userId"),
		NationalID:       req.NationalID,
		NationalIDHash:   req.NationalIDHash,
		DateOfBirth:      dob,
		CustodialAddress: req.CustodialAddress,
		RequestID:        reqID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(v))
}

// Resolve applies a provider verdict.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	v, err := h.service.Resolve(c.UserContext(), ResolveInput{
		VerificationID: c.Params("verificationId"),
		Outcome:        domain.KYCStatus(req.Outcome),
		Reason:         req.Reason,
		TxDigest:       req.TxDigest,
	})
	if err != nil {
		return err
	}
	return c.JSON(toResponse(v))
}

// Get returns one verification.
func (h *Handler) Get(c *fiber.Ctx) error {
	v, err := h.service.Get(c.UserContext(), c.Params("verificationId"))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(v))
}

// History lists the user's attempts.
func (h *Handler) History(c *fiber.Ctx) error {
	list, err := h.service.History(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	out := make([]verificationResponse, 0, len(list))
	for _, v := range list {
		out = append(out, toResponse(v))
	}
	return c.JSON(fiber.Map{"verifications": out})
}
