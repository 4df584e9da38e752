package withdrawal

import (
	"context"
	"fmt"

	"privacy-relay-settlement/internal/store"
)

// DestinationResolver returns the operator address that receives payouts in currency.
type DestinationResolver interface {
	Destination(ctx context.Context, currency string) (string, error)
}

// StaticDestination pays every currency out to one configured address.
type StaticDestination string

func (s StaticDestination) Destination(_ context.Context, currency string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: no settlement destination configured for %s", store.ErrValidation, currency)
	}
	return string(s), nil
}
