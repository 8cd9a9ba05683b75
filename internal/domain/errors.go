package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers of the ledger.
var (
	// ErrNotFound is returned when a referenced entity id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSubmission signals a conflicting unique constraint, such as
	// a second pending KYC verification or a reused email.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrKYCRequired is returned when the acting user is not verified.
	ErrKYCRequired = errors.New("kyc verification required")

	// ErrInvalidTransition is returned for state changes out of a terminal or
	// incompatible state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrBondFullySubscribed is returned when a bond has no capacity left.
	ErrBondFullySubscribed = errors.New("bond fully subscribed")

	// ErrInsufficientHolding is returned when a transfer exceeds owned units.
	ErrInsufficientHolding = errors.New("insufficient holding")

	// ErrAlreadyMatured is returned when maturity was already processed.
	ErrAlreadyMatured = errors.New("bond already matured")

	// ErrContention is returned when a lock or transaction could not be
	// obtained within the retry budget. Callers may retry.
	ErrContention = errors.New("contention")

	// ErrInvalidArgument reports malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
)

var (
	ErrSubscriptionClosed = fmt.Errorf("%w: subscription window closed", ErrInvalidTransition)
	ErrNotMatured         = fmt.Errorf("%w: bond has not reached maturity", ErrInvalidTransition)
)

// Invalid wraps ErrInvalidArgument with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Kind returns the taxonomy name of err, or "internal" when err does not
// belong to it.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateSubmission):
		return "duplicate_submission"
	case errors.Is(err, ErrKYCRequired):
		return "kyc_required"
	case errors.Is(err, ErrBondFullySubscribed):
		return "bond_fully_subscribed"
	case errors.Is(err, ErrInsufficientHolding):
		return "insufficient_holding"
	case errors.Is(err, ErrAlreadyMatured):
		return "already_matured"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}
