package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a platform account that can subscribe to and trade bonds once
// its KYC status is verified.
type User struct {
	ID             string
	Name           *string
	NationalID     int64
	WalletAddress  *string
	Salt           string
	Email          string
	DateOfBirth    *time.Time
	PasswordHash   *string
	Role           Role
	HashedMnemonic *string
	KYCStatus      KYCStatus
	CreatedAt      time.Time
}

// Verified reports whether the user may subscribe or transfer.
func (u User) Verified() bool {
	return u.KYCStatus == KYCVerified
}

// EKYCVerification is one verification attempt for a user.
type EKYCVerification struct {
	ID               string
	UserID           string
	NationalIDHash   string
	DateOfBirth      time.Time
	Age              *int
	CustodialAddress string
	TxDigest         *string
	Status           KYCStatus
	Reason           *string
	RequestID        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Bond is an issuance of discrete units. FaceValue is in the smallest
// currency unit.
type Bond struct {
	ID                  string
	BondObjectID        *string
	BondName            string
	BondType            BondType
	BondSymbol          string
	OrganizationName    string
	FaceValue           int64
	TLUnitOffered       int64
	TLUnitSubscribed    int64
	Maturity            time.Time
	Status              BondStatus
	InterestRate        decimal.Decimal
	Purpose             string
	Market              *Market
	CreatedAt           time.Time
	SubscriptionPeriod  int
	SubscriptionEndDate time.Time
	MaturedAt           *time.Time
}

// Remaining returns the units still available for subscription.
func (b Bond) Remaining() int64 {
	return b.TLUnitOffered - b.TLUnitSubscribed
}

func (b Bond) FullySubscribed() bool {
	return b.TLUnitSubscribed >= b.TLUnitOffered
}

func (b Bond) Matured() bool {
	return b.MaturedAt != nil
}

// Subscription records units allocated to a user at issuance.
type Subscription struct {
	ID              string
	BondID          string
	UserID          string
	WalletAddress   string
	CommittedAmount int64
	TxHash          string
	SubscriptionAmt *int64
	CreatedAt       time.Time
}

// Allocated returns the units actually assigned, zero when unset.
func (s Subscription) Allocated() int64 {
	if s.SubscriptionAmt == nil {
		return 0
	}
	return *s.SubscriptionAmt
}

// Transaction records a transfer of bond units between users.
type Transaction struct {
	ID        string
	BondID    string
	UserFrom  string
	UserTo    string
	Units     int64
	TxHash    string
	CreatedAt time.Time
}

// Event is an append-only audit entry. TxHash is the on-chain reference of
// the subscription or transfer; maturity events carry the settlement hash
// when one was supplied and are empty otherwise.
type Event struct {
	ID        string
	Type      EventType
	BondID    string
	UserID    string
	Details   string
	TxHash    string
	CreatedAt time.Time
}

// Holding is the materialized position of a user in a bond.
type Holding struct {
	BondID string
	UserID string
	Units  int64
}
