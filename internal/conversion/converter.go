package conversion

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateSource supplies the native coin's USD price.
type RateSource interface {
	RateUSD(ctx context.Context) (decimal.Decimal, error)
}

// Converter maps smallest-unit amounts between currencies through USD.
type Converter struct {
	registry *Registry
	rates    RateSource
}

func NewConverter(registry *Registry, rates RateSource) *Converter {
	return &Converter{registry: registry, rates: rates}
}

func (c *Converter) Registry() *Registry {
	return c.registry
}

// USDValue returns the USD value of amount smallest units of currency.
func (c *Converter) USDValue(ctx context.Context, amount int64, currency string) (decimal.Decimal, error) {
	cur, known := c.registry.Lookup(currency)
	if !known {
		zap.L().Debug("Unknown currency treated as USD-equivalent", zap.String("currency", currency))
	}

	units := decimal.New(amount, -cur.Decimals)
	if !cur.Native {
		return units, nil
	}

	rate, err := c.rates.RateUSD(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to price %s: %w", cur.Symbol, err)
	}
	return units.Mul(rate), nil
}

// Convert converts amount smallest units of from into smallest units of to,
// rounded down and floored at zero.
func (c *Converter) Convert(ctx context.Context, amount int64, from, to string) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}

	src, _ := c.registry.Lookup(from)
	dst, _ := c.registry.Lookup(to)
	if src.Symbol == dst.Symbol {
		return amount, nil
	}

	usd, err := c.USDValue(ctx, amount, from)
	if err != nil {
		return 0, err
	}

	target := usd
	if dst.Native {
		rate, err := c.rates.RateUSD(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to price %s: %w", dst.Symbol, err)
		}
		if !rate.IsPositive() {
			return 0, fmt.Errorf("non-positive rate for %s: %s", dst.Symbol, rate)
		}
		target = usd.Div(rate)
	}

	out := target.Shift(dst.Decimals).Floor()
	if out.IsNegative() {
		return 0, nil
	}
	return out.IntPart(), nil
}
