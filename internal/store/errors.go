package store

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the settlement core wraps exactly one of these.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = fmt.Errorf("%w: duplicate transaction", ErrValidation)
	ErrConcurrentModification = fmt.Errorf("%w: concurrent modification detected", ErrInternal)
	ErrClaimLost              = fmt.Errorf("%w: withdrawal claim is held by another worker", ErrConcurrentModification)
	ErrInsufficientCredit     = fmt.Errorf("%w: insufficient credit", ErrValidation)
	ErrInvalidAmount          = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrAmountOutOfBounds      = fmt.Errorf("%w: amount out of bounds", ErrValidation)
	ErrHoldExceedsBalance     = fmt.Errorf("%w: hold exceeds balance", ErrValidation)
	ErrTransactionNotFound    = fmt.Errorf("%w: credit transaction", ErrNotFound)
	ErrSessionNotFound        = fmt.Errorf("%w: deposit session", ErrNotFound)
	ErrTreasuryNotConfigured  = fmt.Errorf("%w: treasury config", ErrNotFound)
	ErrAlreadyWithdrawn       = fmt.Errorf("%w: session already withdrawn", ErrValidation)
	ErrSessionNotWithdrawable = fmt.Errorf("%w: session is not in a withdrawable state", ErrValidation)
	ErrPrivacyPeriodActive    = fmt.Errorf("%w: privacy period has not elapsed", ErrValidation)
	ErrForceNotConfirmed      = fmt.Errorf("%w: forced withdrawal requires confirmation", ErrValidation)
	ErrOwnershipMismatch      = fmt.Errorf("%w: session belongs to another user", ErrForbidden)
)

// Kind returns a stable label for the error's kind, suitable for metrics and results.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	default:
		return "internal"
	}
}
