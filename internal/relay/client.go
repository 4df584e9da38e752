package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/security"
	"privacy-relay-settlement/internal/store"
)

// ErrInvalidKey means the decrypted key material is not a usable signing key.
// Retrying cannot fix it.
var ErrInvalidKey = fmt.Errorf("%w: invalid signing key", store.ErrInternal)

type DepositRequest struct {
	Amount   int64
	Currency string
}

type WithdrawRequest struct {
	Amount int64
	// TargetCurrency is optional; empty pays out in the deposit currency.
	TargetCurrency string
	Destination    string
}

type SwapRequest struct {
	Amount         int64
	Currency       string
	TargetCurrency string
}

// Client is the relay contract. Every call is synchronous; callers bound it
// with a context deadline. The key buffer is only read for the duration of
// the call and is never retained.
type Client interface {
	Deposit(ctx context.Context, key *security.SecretBuffer, req DepositRequest) (*models.DepositReceipt, error)
	Withdraw(ctx context.Context, key *security.SecretBuffer, req WithdrawRequest) (*models.WithdrawalReceipt, error)
	BatchSwap(ctx context.Context, key *security.SecretBuffer, req SwapRequest) (*models.SwapReceipt, error)
}

// CallContext bounds one relay call. A non-positive timeout only adds cancellation.
func CallContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Normalize maps a Client error onto the error taxonomy. A timeout is a
// ServiceUnavailable, like an unreachable relay.
func Normalize(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrForbidden), errors.Is(err, store.ErrInternal),
		errors.Is(err, store.ErrServiceUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: relay call: %v", store.ErrServiceUnavailable, err)
	default:
		return fmt.Errorf("%w: relay call: %v", store.ErrInternal, err)
	}
}

// Retryable reports whether a failed call can succeed on a later attempt.
// Key material that cannot be opened or parsed never becomes usable.
func Retryable(err error) bool {
	return !errors.Is(err, ErrInvalidKey) && !errors.Is(err, security.ErrDecryptionFailed)
}
