package store

import (
	"context"
	"time"

	"github.com/bondify/bondify/internal/domain"
)

// BondFilter narrows ListBonds. Zero values are ignored.
type BondFilter struct {
	Status domain.BondStatus
	Type   domain.BondType
	Market domain.Market
	// MaturedBy keeps bonds whose maturity is at or before the instant.
	MaturedBy time.Time
	// SubscriptionEndedBy keeps bonds whose window ended at or before the instant.
	SubscriptionEndedBy time.Time
	// Unmatured drops bonds that already went through maturity processing.
	Unmatured bool
	Limit     int
	Offset    int
}

func (f BondFilter) matches(b domain.Bond) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Type != "" && b.BondType != f.Type {
		return false
	}
	if f.Market != "" && (b.Market == nil || *b.Market != f.Market) {
		return false
	}
	if !f.MaturedBy.IsZero() && b.Maturity.After(f.MaturedBy) {
		return false
	}
	if !f.SubscriptionEndedBy.IsZero() && b.SubscriptionEndDate.After(f.SubscriptionEndedBy) {
		return false
	}
	if f.Unmatured && b.Matured() {
		return false
	}
	return true
}

type SubscriptionFilter struct {
	BondID string
	UserID string
}

// TransactionFilter matches on bond and, when UserID is set, on either side
// of the transfer.
type TransactionFilter struct {
	BondID string
	UserID string
}

type EventFilter struct {
	BondID string
	UserID string
	Type   domain.EventType
	Limit  int
}

// Reader exposes snapshot reads. Lists are ordered by creation time.
type Reader interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetBond(ctx context.Context, id string) (domain.Bond, error)
	ListBonds(ctx context.Context, filter BondFilter) ([]domain.Bond, error)
	GetVerification(ctx context.Context, id string) (domain.EKYCVerification, error)
	ListVerifications(ctx context.Context, userID string) ([]domain.EKYCVerification, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]domain.Subscription, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error)
	Holding(ctx context.Context, bondID, userID string) (int64, error)
	// Holders returns every position with a positive balance, ordered by user id.
	Holders(ctx context.Context, bondID string) ([]domain.Holding, error)
	// SubscriptionTotal sums subscription_amt over the bond's subscriptions.
	SubscriptionTotal(ctx context.Context, bondID string) (int64, error)
}

// Tx is a unit of work. Lock* methods hold the row until the transaction ends.
type Tx interface {
	Reader

	CreateUser(ctx context.Context, user domain.User) error
	LockUser(ctx context.Context, id string) (domain.User, error)
	SetUserKYCStatus(ctx context.Context, id string, status domain.KYCStatus) error

	CreateVerification(ctx context.Context, v domain.EKYCVerification) error
	LockVerification(ctx context.Context, id string) (domain.EKYCVerification, error)
	// PendingVerification reports the user's unresolved verification, if any.
	PendingVerification(ctx context.Context, userID string) (domain.EKYCVerification, bool, error)
	UpdateVerification(ctx context.Context, v domain.EKYCVerification) error

	CreateBond(ctx context.Context, bond domain.Bond) error
	LockBond(ctx context.Context, id string) (domain.Bond, error)
	UpdateBond(ctx context.Context, bond domain.Bond) error

	CreateSubscription(ctx context.Context, sub domain.Subscription) error
	CreateTransaction(ctx context.Context, t domain.Transaction) error
	AppendEvent(ctx context.Context, e domain.Event) error

	LockHolding(ctx context.Context, bondID, userID string) (int64, error)
	// AdjustHolding adds delta to the position and returns the new balance.
	// A negative result fails with domain.ErrInsufficientHolding.
	AdjustHolding(ctx context.Context, bondID, userID string, delta int64) (int64, error)
}

// Store is the persistence boundary of the ledger.
type Store interface {
	Reader
	// WithTx runs fn atomically. Any error returned by fn discards every
	// write made through the Tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
