package bonds

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/bondify/bondify/internal/domain"
	"github.com/bondify/bondify/internal/store"
)

// Handler exposes bond HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a bond HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type issueRequest struct {
	BondObjectID       string          `json:"bond_object_id"`
	BondName           string          `json:"bond_name"`
	BondType           string          `json:"bond_type"`
	BondSymbol         string          `json:"bond_symbol"`
	OrganizationName   string          `json:"organization_name"`
	FaceValue          int64           `json:"face_value"`
	TLUnitOffered      int64           `json:"tl_unit_offered"`
	Maturity           time.Time       `json:"maturity"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	Purpose            string          `json:"purpose"`
	Market             string          `json:"market"`
	SubscriptionPeriod int             `json:"subscription_period"`
}

// BondResponse is the JSON view of a bond.
type BondResponse struct {
	ID                  string          `json:"id"`
	BondObjectID        *string         `json:"bond_object_id,omitempty"`
	BondName            string          `json:"bond_name"`
	BondType            string          `json:"bond_type"`
	BondSymbol          string          `json:"bond_symbol"`
	OrganizationName    string          `json:"organization_name"`
	FaceValue           int64           `json:"face_value"`
	TLUnitOffered       int64           `json:"tl_unit_offered"`
	TLUnitSubscribed    int64           `json:"tl_unit_subscribed"`
	Maturity            time.Time       `json:"maturity"`
	Status              string          `json:"status"`
	InterestRate        decimal.Decimal `json:"interest_rate"`
	Purpose             string          `json:"purpose"`
	Market              *domain.Market  `json:"market,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	SubscriptionPeriod  int             `json:"subscription_period"`
	SubscriptionEndDate time.Time       `json:"subscription_end_date"`
	MaturedAt           *time.Time      `json:"matured_at,omitempty"`
}

func toResponse(b domain.Bond) BondResponse {
	return BondResponse{
		ID:                  b.ID,
		BondObjectID:        b.BondObjectID,
		BondName:            b.BondName,
		BondType:            string(b.BondType),
		BondSymbol:          b.BondSymbol,
		OrganizationName:    b.OrganizationName,
		FaceValue:           b.FaceValue,
		TLUnitOffered:       b.TLUnitOffered,
		TLUnitSubscribed:    b.TLUnitSubscribed,
		Maturity:            b.Maturity,
		Status:              string(b.Status),
		InterestRate:        b.InterestRate,
		Purpose:             b.Purpose,
		Market:              b.Market,
		CreatedAt:           b.CreatedAt,
		SubscriptionPeriod:  b.SubscriptionPeriod,
		SubscriptionEndDate: b.SubscriptionEndDate,
		MaturedAt:           b.MaturedAt,
	}
}

// Issue creates a bond.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	bond, err := h.service.Issue(c.UserContext(), IssueInput{
		BondObjectID:       req.BondObjectID,
		BondName:           req.BondName,
		BondType:           domain.BondType(req.BondType),
		BondSymbol:         req.BondSymbol,
		OrganizationName:   req.OrganizationName,
		FaceValue:          req.FaceValue,
		TLUnitOffered:      req.TLUnitOffered,
		Maturity:           req.Maturity,
		InterestRate:       req.InterestRate,
		Purpose:            req.Purpose,
		Market:             domain.Market(req.Market),
		SubscriptionPeriod: req.SubscriptionPeriod,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(bond))
}

// Get returns a bond.
func (h *Handler) Get(c *fiber.Ctx) error {
	bond, err := h.service.Get(c.UserContext(), c.Params("bondId"))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(bond))
}

// List returns bonds filtered by the status, type and market query params.
func (h *Handler) List(c *fiber.Ctx) error {
	filter := store.BondFilter{
		Status: domain.BondStatus(c.Query("status")),
		Type:   domain.BondType(c.Query("type")),
		Market: domain.Market(c.Query("market")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.Invalid("unknown status %q", filter.Status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return domain.Invalid("unknown bond type %q", filter.Type)
	}
	if filter.Market != "" && !filter.Market.Valid() {
		return domain.Invalid("unknown market %q", filter.Market)
	}
	var err error
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		return err
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		return err
	}

	list, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	out := make([]BondResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toResponse(b))
	}
	return c.JSON(fiber.Map{"bonds": out})
}

func intQuery(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalid("%s must be an integer", key)
	}
	return v, nil
}
