package domain

// Role is the platform role of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// KYCStatus is shared by users and their verification attempts.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCVerified KYCStatus = "verified"
	KYCRejected KYCStatus = "rejected"
	KYCError    KYCStatus = "error"
)

func (s KYCStatus) Valid() bool {
	switch s {
	case KYCPending, KYCVerified, KYCRejected, KYCError:
		return true
	}
	return false
}

// Terminal reports whether a verification in this status can no longer change.
func (s KYCStatus) Terminal() bool {
	return s == KYCVerified || s == KYCRejected || s == KYCError
}

// BondType classifies the issuer of a bond.
type BondType string

const (
	BondGovernment  BondType = "government"
	BondCorporate   BondType = "corporate"
	BondGreen       BondType = "green"
	BondDevelopment BondType = "development"
	BondDomestic    BondType = "domestic"
)

func (t BondType) Valid() bool {
	switch t {
	case BondGovernment, BondCorporate, BondGreen, BondDevelopment, BondDomestic:
		return true
	}
	return false
}

// BondStatus moves open -> closed exactly once.
type BondStatus string

const (
	BondOpen   BondStatus = "open"
	BondClosed BondStatus = "closed"
)

func (s BondStatus) Valid() bool {
	return s == BondOpen || s == BondClosed
}

// Market tells whether units are sold at issuance or resold.
type Market string

const (
	MarketCurrent Market = "current"
	MarketResale  Market = "resale"
)

func (m Market) Valid() bool {
	return m == MarketCurrent || m == MarketResale
}

// EventType labels audit log entries.
type EventType string

const (
	EventSubscription EventType = "subscription"
	EventTransfer     EventType = "transfer"
	EventMaturity     EventType = "maturity"
)

func (t EventType) Valid() bool {
	switch t {
	case EventSubscription, EventTransfer, EventMaturity:
		return true
	}
	return false
}
