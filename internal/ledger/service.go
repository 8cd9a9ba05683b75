package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bondify/bondify/internal/domain"
	"github.com/bondify/bondify/internal/kyc"
	"github.com/bondify/bondify/internal/notification"
	"github.com/bondify/bondify/internal/store"
)

// Service implements subscription, transfer and maturity processing.
type Service struct {
	store    store.Store
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises the service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the ledger. notifier may be nil.
func NewService(s store.Store, notifier notification.Notifier, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:    s,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Subscribe allocates min(committed, remaining) units of the bond to the
// user. The bond row stays locked from the capacity read until commit, so
// concurrent subscriptions can never jointly exceed the offered units. The
// bond closes when the allocation fills it.
func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (SubscribeResult, error) {
	if in.CommittedAmount <= 0 {
		return SubscribeResult{}, domain.Invalid("committed amount must be positive")
	}
	if strings.TrimSpace(in.WalletAddress) == "" {
		return SubscribeResult{}, domain.Invalid("wallet address is required")
	}
	if strings.TrimSpace(in.TxHash) == "" {
		return SubscribeResult{}, domain.Invalid("tx hash is required")
	}

	var (
		result SubscribeResult
		event  domain.Event
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		user, err := tx.GetUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		if err := kyc.RequireVerified(user); err != nil {
			return err
		}

		bond, err := tx.LockBond(ctx, in.BondID)
		if err != nil {
			return err
		}
		now := s.now()
		switch {
		case bond.Status == domain.BondClosed && bond.FullySubscribed():
			return domain.ErrBondFullySubscribed
		case bond.Status == domain.BondClosed:
			return domain.ErrSubscriptionClosed
		case !now.Before(bond.SubscriptionEndDate):
			return domain.ErrSubscriptionClosed
		}

		allocated := min(in.CommittedAmount, bond.Remaining())
		if allocated <= 0 {
			return domain.ErrBondFullySubscribed
		}

		bond.TLUnitSubscribed += allocated
		if bond.FullySubscribed() {
			bond.Status = domain.BondClosed
		}
		if err := tx.UpdateBond(ctx, bond); err != nil {
			return err
		}

		sub := domain.Subscription{
			ID:              uuid.New().String(),
			BondID:          bond.ID,
			UserID:          user.ID,
			WalletAddress:   in.WalletAddress,
			CommittedAmount: in.CommittedAmount,
			TxHash:          in.TxHash,
			SubscriptionAmt: &allocated,
			CreatedAt:       now,
		}
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		if _, err := tx.AdjustHolding(ctx, bond.ID, user.ID, allocated); err != nil {
			return err
		}

		event = domain.Event{
			ID:        uuid.New().String(),
			Type:      domain.EventSubscription,
			BondID:    bond.ID,
			UserID:    user.ID,
			Details:   fmt.Sprintf("allocated %d of %d committed units", allocated, in.CommittedAmount),
			TxHash:    in.TxHash,
			CreatedAt: now,
		}
		if err := tx.AppendEvent(ctx, event); err != nil {
			return err
		}
		result = SubscribeResult{Subscription: sub, Bond: bond}
		return nil
	})
	if err != nil {
		return SubscribeResult{}, err
	}

	s.logger.Info("bond subscribed",
		"bond_id", in.BondID,
		"user_id", in.UserID,
		"allocated", result.Subscription.Allocated(),
		"status", result.Bond.Status,
	)
	s.publish(ctx, notification.FromEvent(event))
	return result, nil
}

// Transfer moves units between two verified holders. Positions are locked
// in user id order so opposing transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	switch {
	case in.Units <= 0:
		return TransferResult{}, domain.Invalid("units must be positive")
	case in.FromUserID == in.ToUserID:
		return TransferResult{}, domain.Invalid("sender and receiver must differ")
	case strings.TrimSpace(in.TxHash) == "":
		return TransferResult{}, domain.Invalid("tx hash is required")
	}

	var (
		result TransferResult
		event  domain.Event
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		for _, id := range []string{in.FromUserID, in.ToUserID} {
			user, err := tx.GetUser(ctx, id)
			if err != nil {
				return err
			}
			if err := kyc.RequireVerified(user); err != nil {
				return fmt.Errorf("user %s: %w", id, err)
			}
		}

		// The bond lock orders transfers against maturity processing.
		bond, err := tx.LockBond(ctx, in.BondID)
		if err != nil {
			return err
		}
		if bond.Matured() {
			return domain.ErrAlreadyMatured
		}

		order := []string{in.FromUserID, in.ToUserID}
		slices.Sort(order)
		held := make(map[string]int64, 2)
		for _, id := range order {
			units, err := tx.LockHolding(ctx, bond.ID, id)
			if err != nil {
				return err
			}
			held[id] = units
		}
		if held[in.FromUserID] < in.Units {
			return fmt.Errorf("%w: holds %d, requested %d", domain.ErrInsufficientHolding, held[in.FromUserID], in.Units)
		}

		fromBalance, err := tx.AdjustHolding(ctx, bond.ID, in.FromUserID, -in.Units)
		if err != nil {
			return err
		}
		toBalance, err := tx.AdjustHolding(ctx, bond.ID, in.ToUserID, in.Units)
		if err != nil {
			return err
		}

		now := s.now()
		t := domain.Transaction{
			ID:        uuid.New().String(),
			BondID:    bond.ID,
			UserFrom:  in.FromUserID,
			UserTo:    in.ToUserID,
			Units:     in.Units,
			TxHash:    in.TxHash,
			CreatedAt: now,
		}
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return err
		}
		event = domain.Event{
			ID:        uuid.New().String(),
			Type:      domain.EventTransfer,
			BondID:    bond.ID,
			UserID:    in.FromUserID,
			Details:   fmt.Sprintf("transferred %d units to %s", in.Units, in.ToUserID),
			TxHash:    in.TxHash,
			CreatedAt: now,
		}
		if err := tx.AppendEvent(ctx, event); err != nil {
			return err
		}
		result = TransferResult{Transaction: t, FromBalance: fromBalance, ToBalance: toBalance}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	s.logger.Info("bond units transferred",
		"bond_id", in.BondID,
		"from", in.FromUserID,
		"to", in.ToUserID,
		"units", in.Units,
	)
	msg := notification.FromEvent(event)
	msg.Destination = in.ToUserID
	msg.Body = fmt.Sprintf("You received %d units from %s", in.Units, in.FromUserID)
	s.publish(ctx, msg)
	return result, nil
}

// MatureBond runs maturity processing without a settlement hash.
func (s *Service) MatureBond(ctx context.Context, bondID string) ([]domain.Event, error) {
	return s.Mature(ctx, MatureInput{BondID: bondID})
}

// Mature emits one maturity event per holder with a positive balance and
// marks the bond matured. Processing is one-shot: later calls fail with
// domain.ErrAlreadyMatured and write nothing.
func (s *Service) Mature(ctx context.Context, in MatureInput) ([]domain.Event, error) {
	bondID := in.BondID
	txHash := strings.TrimSpace(in.TxHash)
	var events []domain.Event
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		events = nil
		bond, err := tx.LockBond(ctx, bondID)
		if err != nil {
			return err
		}
		if bond.Matured() {
			return domain.ErrAlreadyMatured
		}
		now := s.now()
		if now.Before(bond.Maturity) {
			return domain.ErrNotMatured
		}

		holders, err := tx.Holders(ctx, bond.ID)
		if err != nil {
			return err
		}
		for _, h := range holders {
			if h.Units <= 0 {
				continue
			}
			e := domain.Event{
				ID:        uuid.New().String(),
				Type:      domain.EventMaturity,
				BondID:    bond.ID,
				UserID:    h.UserID,
				Details:   fmt.Sprintf("matured holding of %d units at face value %d", h.Units, bond.FaceValue),
				TxHash:    txHash,
				CreatedAt: now,
			}
			if err := tx.AppendEvent(ctx, e); err != nil {
				return err
			}
			events = append(events, e)
		}

		bond.Status = domain.BondClosed
		bond.MaturedAt = &now
		return tx.UpdateBond(ctx, bond)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bond matured", "bond_id", bondID, "holders", len(events))
	for _, e := range events {
		s.publish(ctx, notification.FromEvent(e))
	}
	return events, nil
}

// Holding returns the user's materialized position in the bond.
func (s *Service) Holding(ctx context.Context, bondID, userID string) (int64, error) {
	if _, err := s.store.GetBond(ctx, bondID); err != nil {
		return 0, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return 0, err
	}
	return s.store.Holding(ctx, bondID, userID)
}

// Holders lists every positive position in the bond.
func (s *Service) Holders(ctx context.Context, bondID string) ([]domain.Holding, error) {
	if _, err := s.store.GetBond(ctx, bondID); err != nil {
		return nil, err
	}
	return s.store.Holders(ctx, bondID)
}

// PositionFromLog recomputes a position from the subscription and transfer
// logs: allocations received, plus units transferred in, minus units
// transferred out.
func (s *Service) PositionFromLog(ctx context.Context, bondID, userID string) (int64, error) {
	subs, err := s.store.ListSubscriptions(ctx, store.SubscriptionFilter{BondID: bondID, UserID: userID})
	if err != nil {
		return 0, err
	}
	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{BondID: bondID, UserID: userID})
	if err != nil {
		return 0, err
	}
	return position(userID, subs, txs), nil
}

func position(userID string, subs []domain.Subscription, txs []domain.Transaction) int64 {
	var units int64
	for _, sub := range subs {
		if sub.UserID == userID {
			units += sub.Allocated()
		}
	}
	for _, t := range txs {
		if t.UserTo == userID {
			units += t.Units
		}
		if t.UserFrom == userID {
			units -= t.Units
		}
	}
	return units
}

// Events returns the bond's audit trail.
func (s *Service) Events(ctx context.Context, filter store.EventFilter) ([]domain.Event, error) {
	if filter.BondID != "" {
		if _, err := s.store.GetBond(ctx, filter.BondID); err != nil {
			return nil, err
		}
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, domain.Invalid("unknown event type %q", filter.Type)
	}
	return s.store.ListEvents(ctx, filter)
}

// Reconcile cross-checks the bond counter against the subscription log and
// every holding against its log-derived position. The reads are not one
// snapshot, so a report taken under write load may show a transient
// imbalance that clears on retry.
func (s *Service) Reconcile(ctx context.Context, bondID string) (ReconcileReport, error) {
	bond, err := s.store.GetBond(ctx, bondID)
	if err != nil {
		return ReconcileReport{}, err
	}
	subTotal, err := s.store.SubscriptionTotal(ctx, bondID)
	if err != nil {
		return ReconcileReport{}, err
	}
	holders, err := s.store.Holders(ctx, bondID)
	if err != nil {
		return ReconcileReport{}, err
	}
	subs, err := s.store.ListSubscriptions(ctx, store.SubscriptionFilter{BondID: bondID})
	if err != nil {
		return ReconcileReport{}, err
	}
	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{BondID: bondID})
	if err != nil {
		return ReconcileReport{}, err
	}

	report := ReconcileReport{
		BondID:            bond.ID,
		Offered:           bond.TLUnitOffered,
		Subscribed:        bond.TLUnitSubscribed,
		SubscriptionTotal: subTotal,
	}

	held := make(map[string]int64, len(holders))
	for _, h := range holders {
		report.HoldingsTotal += h.Units
		held[h.UserID] = h.Units
	}
	users := make(map[string]struct{}, len(held))
	for id := range held {
		users[id] = struct{}{}
	}
	for _, sub := range subs {
		users[sub.UserID] = struct{}{}
	}
	for _, t := range txs {
		users[t.UserFrom] = struct{}{}
		users[t.UserTo] = struct{}{}
	}
	for id := range users {
		if position(id, subs, txs) != held[id] {
			report.Mismatched = append(report.Mismatched, id)
		}
	}
	slices.Sort(report.Mismatched)

	report.Balanced = bond.TLUnitSubscribed >= 0 &&
		bond.TLUnitSubscribed <= bond.TLUnitOffered &&
		bond.TLUnitSubscribed == subTotal &&
		report.HoldingsTotal == subTotal &&
		len(report.Mismatched) == 0
	if !report.Balanced {
		s.logger.Warn("ledger imbalance", "bond_id", bondID, "subscribed", bond.TLUnitSubscribed,
			"subscription_total", subTotal, "holdings_total", report.HoldingsTotal, "mismatched", len(report.Mismatched))
	}
	return report, nil
}

func (s *Service) publish(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("publish ledger event", "kind", msg.Kind, "destination", msg.Destination, "error", err)
	}
}
