package ledger

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bondify/bondify/internal/domain"
	"github.com/bondify/bondify/internal/store"
)

// Handler exposes ledger endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type subscribeRequest struct {
	UserID          string `json:"user_id"`
	WalletAddress   string `json:"wallet_address"`
	CommittedAmount int64  `json:"committed_amount"`
	TxHash          string `json:"tx_hash"`
}

type transferRequest struct {
	FromUserID string `json:"user_from"`
	ToUserID   string `json:"user_to"`
	Units      int64  `json:"units"`
	TxHash     string `json:"tx_hash"`
}

type matureRequest struct {
	TxHash string `json:"tx_hash"`
}

type eventResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	BondID    string    `json:"bond_id"`
	UserID    string    `json:"user_id"`
	Details   string    `json:"details"`
	TxHash    string    `json:"tx_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toEventResponses(events []domain.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:        e.ID,
			Type:      string(e.Type),
			BondID:    e.BondID,
			UserID:    e.UserID,
			Details:   e.Details,
			TxHash:    e.TxHash,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

// Subscribe allocates units of the bond in the path.
func (h *Handler) Subscribe(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Subscribe(c.UserContext(), SubscribeInput{
		BondID:          c.Params("bondId"),
		UserID:          req.UserID,
		WalletAddress:   req.WalletAddress,
		CommittedAmount: req.CommittedAmount,
		TxHash:          req.TxHash,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"subscription_id":    res.Subscription.ID,
		"bond_id":            res.Subscription.BondID,
		"user_id":            res.Subscription.UserID,
		"committed_amount":   res.Subscription.CommittedAmount,
		"subscription_amt":   res.Subscription.Allocated(),
		"tx_hash":            res.Subscription.TxHash,
		"bond_status":        res.Bond.Status,
		"tl_unit_subscribed": res.Bond.TLUnitSubscribed,
		"created_at":         res.Subscription.CreatedAt,
	})
}

// Transfer moves units between holders.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		BondID:     c.Params("bondId"),
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Units:      req.Units,
		TxHash:     req.TxHash,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.Transaction.ID,
		"bond_id":        res.Transaction.BondID,
		"user_from":      res.Transaction.UserFrom,
		"user_to":        res.Transaction.UserTo,
		"units":          res.Transaction.Units,
		"from_balance":   res.FromBalance,
		"to_balance":     res.ToBalance,
		"created_at":     res.Transaction.CreatedAt,
	})
}

// Holding returns one user's position.
func (h *Handler) Holding(c *fiber.Ctx) error {
	bondID, userID := c.Params("bondId"), c.Params("userId")
	units, err := h.service.Holding(c.UserContext(), bondID, userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"bond_id": bondID, "user_id": userID, "units": units})
}

// Holders lists positive positions.
func (h *Handler) Holders(c *fiber.Ctx) error {
	holders, err := h.service.Holders(c.UserContext(), c.Params("bondId"))
	if err != nil {
		return err
	}
	out := make([]fiber.Map, 0, len(holders))
	for _, hd := range holders {
		out = append(out, fiber.Map{"user_id": hd.UserID, "units": hd.Units})
	}
	return c.JSON(fiber.Map{"bond_id": c.Params("bondId"), "holders": out})
}

// Mature runs maturity processing for the bond. The body is optional and
// may carry the settlement tx_hash.
func (h *Handler) Mature(c *fiber.Ctx) error {
	var req matureRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	events, err := h.service.Mature(c.UserContext(), MatureInput{BondID: c.Params("bondId"), TxHash: req.TxHash})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"bond_id": c.Params("bondId"), "events": toEventResponses(events)})
}

// Events lists the bond's audit trail, optionally filtered by type and user.
func (h *Handler) Events(c *fiber.Ctx) error {
	filter := store.EventFilter{
		BondID: c.Params("bondId"),
		UserID: c.Query("user_id"),
		Type:   domain.EventType(c.Query("type")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return domain.Invalid("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	events, err := h.service.Events(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"events": toEventResponses(events)})
}

// Reconcile reports whether the bond's counters agree.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	report, err := h.service.Reconcile(c.UserContext(), c.Params("bondId"))
	if err != nil {
		return err
	}
	return c.JSON(report)
}
