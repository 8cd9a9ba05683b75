package bonds

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bondify/bondify/internal/domain"
	"github.com/bondify/bondify/internal/store"
)

const (
	day             = 24 * time.Hour
	defaultPageSize = 50
	maxPageSize     = 500
)

// Service issues bonds and manages their subscription windows.
type Service struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option customises the service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a bond service instance.
func NewService(s store.Store, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{store: s, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// IssueInput captures the terms of a new issuance.
type IssueInput struct {
	BondObjectID       string
	BondName           string
	BondType           domain.BondType
	BondSymbol         string
	OrganizationName   string
	FaceValue          int64
	TLUnitOffered      int64
	Maturity           time.Time
	InterestRate       decimal.Decimal
	Purpose            string
	Market             domain.Market
	SubscriptionPeriod int
}

// Issue opens a new bond for subscription. The window closes
// SubscriptionPeriod days after issuance.
func (s *Service) Issue(ctx context.Context, in IssueInput) (domain.Bond, error) {
	if err := validateIssue(in); err != nil {
		return domain.Bond{}, err
	}
	now := s.now()
	end := now.Add(time.Duration(in.SubscriptionPeriod) * day)
	if !in.Maturity.After(end) {
		return domain.Bond{}, domain.Invalid("maturity must fall after the subscription window ends")
	}

	bond := domain.Bond{
		ID:                  uuid.New().String(),
		BondName:            strings.TrimSpace(in.BondName),
		BondType:            in.BondType,
		BondSymbol:          strings.ToUpper(strings.TrimSpace(in.BondSymbol)),
		OrganizationName:    strings.TrimSpace(in.OrganizationName),
		FaceValue:           in.FaceValue,
		TLUnitOffered:       in.TLUnitOffered,
		Maturity:            in.Maturity.UTC(),
		Status:              domain.BondOpen,
		InterestRate:        in.InterestRate,
		Purpose:             in.Purpose,
		CreatedAt:           now,
		SubscriptionPeriod:  in.SubscriptionPeriod,
		SubscriptionEndDate: end,
	}
	if in.BondObjectID != "" {
		objectID := in.BondObjectID
		bond.BondObjectID = &objectID
	}
	if in.Market != "" {
		market := in.Market
		bond.Market = &market
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateBond(ctx, bond)
	})
	if err != nil {
		return domain.Bond{}, err
	}
	s.logger.Info("bond issued", "bond_id", bond.ID, "symbol", bond.BondSymbol, "units", bond.TLUnitOffered)
	return bond, nil
}

func validateIssue(in IssueInput) error {
	switch {
	case strings.TrimSpace(in.BondName) == "":
		return domain.Invalid("bond name is required")
	case strings.TrimSpace(in.BondSymbol) == "":
		return domain.Invalid("bond symbol is required")
	case strings.TrimSpace(in.OrganizationName) == "":
		return domain.Invalid("organization name is required")
	case !in.BondType.Valid():
		return domain.Invalid("unknown bond type %q", in.BondType)
	case in.Market != "" && !in.Market.Valid():
		return domain.Invalid("unknown market %q", in.Market)
	case in.FaceValue <= 0:
		return domain.Invalid("face value must be positive")
	case in.TLUnitOffered <= 0:
		return domain.Invalid("offered units must be positive")
	case in.SubscriptionPeriod <= 0:
		return domain.Invalid("subscription period must be positive")
	case in.InterestRate.IsNegative():
		return domain.Invalid("interest rate must not be negative")
	}
	return nil
}

// Get retrieves a bond.
func (s *Service) Get(ctx context.Context, id string) (domain.Bond, error) {
	return s.store.GetBond(ctx, id)
}

// List returns bonds matching filter with a bounded page size.
func (s *Service) List(ctx context.Context, filter store.BondFilter) ([]domain.Bond, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		return nil, domain.Invalid("offset must not be negative")
	}
	return s.store.ListBonds(ctx, filter)
}

// CloseExpired closes every open bond whose window ended at or before now.
// Each bond is closed in its own transaction so one contended row does not
// hold back the rest.
func (s *Service) CloseExpired(ctx context.Context, now time.Time) ([]string, error) {
	expired, err := s.store.ListBonds(ctx, store.BondFilter{Status: domain.BondOpen, SubscriptionEndedBy: now})
	if err != nil {
		return nil, err
	}

	var (
		closed []string
		errs   []error
	)
	for _, candidate := range expired {
		var changed bool
		err := s.store.WithTx(ctx, func(tx store.Tx) error {
			bond, err := tx.LockBond(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// Re-checked under the lock: a subscription may have filled and
			// closed the bond since the listing.
			if bond.Status != domain.BondOpen || bond.SubscriptionEndDate.After(now) {
				return nil
			}
			bond.Status = domain.BondClosed
			changed = true
			return tx.UpdateBond(ctx, bond)
		})
		if err != nil {
			s.logger.Warn("close expired bond", "bond_id", candidate.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if changed {
			closed = append(closed, candidate.ID)
		}
	}
	if len(closed) > 0 {
		s.logger.Info("subscription windows closed", "count", len(closed))
	}
	return closed, errors.Join(errs...)
}
