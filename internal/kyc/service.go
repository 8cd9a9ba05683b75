// Package kyc runs the e-KYC verification lifecycle and gates ledger
// operations on its outcome.
package kyc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bondify/bondify/internal/domain"
	"github.com/bondify/bondify/internal/identity"
	"github.com/bondify/bondify/internal/store"
)

// Service records verification attempts and propagates their outcome to the
// owning user.
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

// NewService builds a KYC service.
func NewService(s store.Store, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{store: s, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// SubmitInput describes a new verification attempt. When NationalIDHash is
// empty the raw NationalID is hashed with the user's salt.
type SubmitInput struct {
	UserID           string
	NationalIDHash   string
	NationalID       int64
	DateOfBirth      time.Time
	CustodialAddress string
	RequestID        string
}

// ResolveInput carries the provider's verdict.
type ResolveInput struct {
	VerificationID string
	Outcome        domain.KYCStatus
	Reason         string
	TxDigest       string
}

// Submit opens a pending verification. A user may have at most one pending
// attempt at a time.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (domain.EKYCVerification, error) {
	if strings.TrimSpace(in.NationalIDHash) == "" && in.NationalID <= 0 {
		return domain.EKYCVerification{}, domain.Invalid("national id or its hash is required")
	}
	if strings.TrimSpace(in.CustodialAddress) == "" {
		return domain.EKYCVerification{}, domain.Invalid("custodial address is required")
	}
	now := s.now()
	if in.DateOfBirth.IsZero() || in.DateOfBirth.After(now) {
		return domain.EKYCVerification{}, domain.Invalid("date of birth must be in the past")
	}

	age := ageAt(in.DateOfBirth, now)
	v := domain.EKYCVerification{
		ID:               uuid.New().String(),
		UserID:           in.UserID,
		NationalIDHash:   in.NationalIDHash,
		DateOfBirth:      in.DateOfBirth,
		Age:              &age,
		CustodialAddress: in.CustodialAddress,
		Status:           domain.KYCPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.RequestID != "" {
		reqID := in.RequestID
		v.RequestID = &reqID
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		user, err := tx.LockUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		if v.NationalIDHash == "" {
			v.NationalIDHash = identity.HashNationalID(user.Salt, in.NationalID)
		}
		if _, found, err := tx.PendingVerification(ctx, in.UserID); err != nil {
			return err
		} else if found {
			return domain.ErrDuplicateSubmission
		}
		return tx.CreateVerification(ctx, v)
	})
	if err != nil {
		return domain.EKYCVerification{}, err
	}
	s.logger.Info("kyc submitted", "user_id", v.UserID, "verification_id", v.ID)
	return v, nil
}

// Resolve moves a pending verification to a terminal status. A verified
// outcome promotes the user; a failed one only demotes a user that is not
// already verified by an earlier attempt.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (domain.EKYCVerification, error) {
	if !in.Outcome.Terminal() {
		return domain.EKYCVerification{}, domain.Invalid("outcome %q is not terminal", in.Outcome)
	}

	var resolved domain.EKYCVerification
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		v, err := tx.LockVerification(ctx, in.VerificationID)
		if err != nil {
			return err
		}
		if v.Status.Terminal() {
			return domain.ErrInvalidTransition
		}
		user, err := tx.LockUser(ctx, v.UserID)
		if err != nil {
			return err
		}

		v.Status = in.Outcome
		v.UpdatedAt = s.now()
		if in.Reason != "" {
			reason := in.Reason
			v.Reason = &reason
		}
		if in.TxDigest != "" {
			digest := in.TxDigest
			v.TxDigest = &digest
		}
		if err := tx.UpdateVerification(ctx, v); err != nil {
			return err
		}

		if in.Outcome == domain.KYCVerified || !user.Verified() {
			if err := tx.SetUserKYCStatus(ctx, user.ID, in.Outcome); err != nil {
				return err
			}
		}
		resolved = v
		return nil
	})
	if err != nil {
		return domain.EKYCVerification{}, err
	}
	s.logger.Info("kyc resolved", "user_id", resolved.UserID, "verification_id", resolved.ID, "status", resolved.Status)
	return resolved, nil
}

// Get returns a verification by id.
func (s *Service) Get(ctx context.Context, id string) (domain.EKYCVerification, error) {
	return s.store.GetVerification(ctx, id)
}

// History lists a user's verification attempts, oldest first.
func (s *Service) History(ctx context.Context, userID string) ([]domain.EKYCVerification, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListVerifications(ctx, userID)
}

// RequireVerified fails with domain.ErrKYCRequired unless the user passed KYC.
func RequireVerified(user domain.User) error {
	if !user.Verified() {
		return domain.ErrKYCRequired
	}
	return nil
}

func ageAt(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}
