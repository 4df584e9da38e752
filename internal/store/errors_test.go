package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestSentinelsWrapKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{ErrInsufficientCredit, ErrValidation},
		{ErrDuplicateTransaction, ErrValidation},
		{ErrPrivacyPeriodActive, ErrValidation},
		{ErrSessionNotFound, ErrNotFound},
		{ErrTreasuryNotConfigured, ErrNotFound},
		{ErrOwnershipMismatch, ErrForbidden},
		{ErrConcurrentModification, ErrInternal},
		{ErrClaimLost, ErrConcurrentModification},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.kind) {
			t.Errorf("%v does not wrap %v", tt.err, tt.kind)
		}
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("deduct: %w", ErrInsufficientCredit), "validation"},
		{fmt.Errorf("get: %w", ErrSessionNotFound), "not_found"},
		{ErrOwnershipMismatch, "forbidden"},
		{fmt.Errorf("relay: %w", ErrServiceUnavailable), "service_unavailable"},
		{errors.New("boom"), "internal"},
		{context.DeadlineExceeded, "internal"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
