package fees

import (
	"errors"
	"testing"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

func TestCalculate_PrivacyFeeExample(t *testing.T) {
	cfg := models.FeeConfig{
		Policy:  models.FeePolicyOperatorPaysAll,
		Privacy: models.FeeComponent{Fixed: 6_000_000, Bps: 35},
	}

	b, err := Calculate(2_000_000_000, cfg)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if b.PrivacyFee != 13_000_000 {
		t.Errorf("Expected privacy fee 13000000, got %d", b.PrivacyFee)
	}
	if b.Total != 13_000_000 {
		t.Errorf("Expected total 13000000, got %d", b.Total)
	}

	deduction, err := UserDeduction(b, cfg.Policy)
	if err != nil {
		t.Fatalf("UserDeduction failed: %v", err)
	}
	if deduction != 0 {
		t.Errorf("Expected zero deduction under operator_pays_all, got %d", deduction)
	}
}

func TestUserDeduction_Policies(t *testing.T) {
	b := models.FeeBreakdown{PrivacyFee: 100, SwapFee: 20, OperatorFee: 3, Total: 123}
	tests := []struct {
		policy models.FeePolicy
		want   int64
	}{
		{models.FeePolicyOperatorPaysAll, 3},
		{models.FeePolicyUserPaysSwap, 23},
		{models.FeePolicyUserPaysPrivacy, 103},
		{models.FeePolicyUserPaysAll, 123},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			got, err := UserDeduction(b, tt.policy)
			if err != nil {
				t.Fatalf("UserDeduction failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}

	if _, err := UserDeduction(b, models.FeePolicy(0)); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for unknown policy, got %v", err)
	}
}

func TestComponentFee(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		c      models.FeeComponent
		want   int64
	}{
		{"zero", 0, models.FeeComponent{Fixed: 5, Bps: 100}, 5},
		{"truncates", 999, models.FeeComponent{Bps: 1}, 0},
		{"full", 1000, models.FeeComponent{Bps: 10_000}, 1000},
		{"fixed only", 1000, models.FeeComponent{Fixed: 42}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComponentFee(tt.amount, tt.c); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(models.FeeConfig{Swap: models.FeeComponent{Bps: 10_001}}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for bps > 10000, got %v", err)
	}
	if err := Validate(models.FeeConfig{Operator: models.FeeComponent{Fixed: -1}}); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for negative fixed fee, got %v", err)
	}
	if _, err := Calculate(-1, models.FeeConfig{}); !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
}
