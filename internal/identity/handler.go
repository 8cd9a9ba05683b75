package identity

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bondify/bondify/internal/domain"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Name          string `json:"name"`
	NationalID    int64  `json:"national_id"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	WalletAddress string `json:"wallet_address"`
	DateOfBirth   string `json:"date_of_birth"`
	Role          string `json:"role"`
	Mnemonic      string `json:"mnemonic"`
}

// UserResponse is the public view of a user. Secrets never leave the service.
type UserResponse struct {
	ID            string     `json:"id"`
	Name          *string    `json:"name,omitempty"`
	Email         string     `json:"email"`
	WalletAddress *string    `json:"wallet_address,omitempty"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	Role          string     `json:"role"`
	KYCStatus     string     `json:"kyc_status"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		WalletAddress: u.WalletAddress,
		DateOfBirth:   u.DateOfBirth,
		Role:          string(u.Role),
		KYCStatus:     string(u.KYCStatus),
		CreatedAt:     u.CreatedAt,
	}
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	in := RegisterInput{
		Name:          req.Name,
		NationalID:    req.NationalID,
		Email:         req.Email,
		Password:      req.Password,
		WalletAddress: req.WalletAddress,
		Role:          domain.Role(req.Role),
		Mnemonic:      req.Mnemonic,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse(time.DateOnly, req.DateOfBirth)
		if err != nil {
			return domain.Invalid("date_of_birth must be YYYY-MM-DD")
		}
		in.DateOfBirth = &dob
	}
	user, err := h.service.Register(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(user))
}

// Get returns a single user.
func (h *Handler) Get(c *fiber.Ctx) error {
	user, err := h.service.Get(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(user))
}
