package fees

import (
	"fmt"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"

	"github.com/shopspring/decimal"
)

const bpsDenominator = 10_000

var bpsScale = decimal.NewFromInt(bpsDenominator)

// Validate checks every component of cfg.
func Validate(cfg models.FeeConfig) error {
	components := map[string]models.FeeComponent{
		"privacy":  cfg.Privacy,
		"swap":     cfg.Swap,
		"operator": cfg.Operator,
	}
	for name, c := range components {
		if c.Bps < 0 || c.Bps > bpsDenominator {
			return fmt.Errorf("%w: %s fee bps must be within 0-10000, got %d", store.ErrValidation, name, c.Bps)
		}
		if c.Fixed < 0 {
			return fmt.Errorf("%w: %s fixed fee cannot be negative", store.ErrValidation, name)
		}
	}
	return nil
}

// ComponentFee is fixed + amount * bps / 10_000, truncated toward zero.
func ComponentFee(amount int64, c models.FeeComponent) int64 {
	proportional := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(c.Bps)).
		Div(bpsScale).
		Truncate(0)
	return c.Fixed + proportional.IntPart()
}

// Calculate returns every fee component for amount under cfg.
func Calculate(amount int64, cfg models.FeeConfig) (models.FeeBreakdown, error) {
	if amount < 0 {
		return models.FeeBreakdown{}, fmt.Errorf("%w: got %d", store.ErrInvalidAmount, amount)
	}
	if err := Validate(cfg); err != nil {
		return models.FeeBreakdown{}, err
	}

	b := models.FeeBreakdown{
		PrivacyFee:  ComponentFee(amount, cfg.Privacy),
		SwapFee:     ComponentFee(amount, cfg.Swap),
		OperatorFee: ComponentFee(amount, cfg.Operator),
	}
	b.Total = b.PrivacyFee + b.SwapFee + b.OperatorFee
	return b, nil
}

// UserDeduction returns the part of the fees charged to the user. The operator
// fee is always included; policy decides which relay fees are passed through.
func UserDeduction(b models.FeeBreakdown, policy models.FeePolicy) (int64, error) {
	switch policy {
	case models.FeePolicyOperatorPaysAll:
		return b.OperatorFee, nil
	case models.FeePolicyUserPaysSwap:
		return b.OperatorFee + b.SwapFee, nil
	case models.FeePolicyUserPaysPrivacy:
		return b.OperatorFee + b.PrivacyFee, nil
	case models.FeePolicyUserPaysAll:
		return b.Total, nil
	default:
		return 0, fmt.Errorf("%w: unknown fee policy %s", store.ErrValidation, policy)
	}
}
