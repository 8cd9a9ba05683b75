// Package ledger tracks bond units from issuance to maturity: primary
// subscriptions, peer transfers and the final maturity sweep. Every
// mutation runs inside a single store transaction and audit events are only
// written when that transaction commits.
package ledger

import "github.com/bondify/bondify/internal/domain"

// SubscribeInput captures a subscription request.
type SubscribeInput struct {
	BondID          string
	UserID          string
	WalletAddress   string
	CommittedAmount int64
	TxHash          string
}

// TransferInput captures a transfer of units between two holders.
type TransferInput struct {
	BondID     string
	FromUserID string
	ToUserID   string
	Units      int64
	TxHash     string
}

// MatureInput captures a maturity run. TxHash is the optional settlement
// transaction recorded on every maturity event; scheduled runs leave it empty.
type MatureInput struct {
	BondID string
	TxHash string
}

// SubscribeResult is the subscription written plus the bond after the
// allocation.
type SubscribeResult struct {
	Subscription domain.Subscription
	Bond         domain.Bond
}

// TransferResult carries the recorded transaction and both balances after
// the move.
type TransferResult struct {
	Transaction domain.Transaction
	FromBalance int64
	ToBalance   int64
}

// ReconcileReport compares the bond counter, the subscription log and the
// materialized holdings.
type ReconcileReport struct {
	BondID            string   `json:"bond_id"`
	Offered           int64    `json:"tl_unit_offered"`
	Subscribed        int64    `json:"tl_unit_subscribed"`
	SubscriptionTotal int64    `json:"subscription_total"`
	HoldingsTotal     int64    `json:"holdings_total"`
	Mismatched        []string `json:"mismatched_users,omitempty"`
	Balanced          bool     `json:"balanced"`
}
