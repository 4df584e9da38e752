package conversion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

type fixedRate struct {
	rate decimal.Decimal
	err  error
}

func (f fixedRate) RateUSD(ctx context.Context) (decimal.Decimal, error) {
	return f.rate, f.err
}

func TestConvert_NativeToStable(t *testing.T) {
	c := NewConverter(DefaultRegistry(), fixedRate{rate: decimal.NewFromInt(150)})

	// 2 SOL at $150 = 300 USDC
	got, err := c.Convert(context.Background(), 2_000_000_000, "SOL", "USDC")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if got != 300_000_000 {
		t.Errorf("Expected 300000000, got %d", got)
	}
}

func TestConvert_StableToNative(t *testing.T) {
	c := NewConverter(DefaultRegistry(), fixedRate{rate: decimal.NewFromInt(200)})

	got, err := c.Convert(context.Background(), 50_000_000, "usdc", "SOL")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if got != 250_000_000 {
		t.Errorf("Expected 250000000, got %d", got)
	}
}

func TestConvert_EdgeCases(t *testing.T) {
	c := NewConverter(DefaultRegistry(), fixedRate{err: errors.New("oracle down")})
	ctx := context.Background()

	if got, _ := c.Convert(ctx, -5, "SOL", "USDC"); got != 0 {
		t.Errorf("Expected non-positive amount to floor at 0, got %d", got)
	}
	if got, err := c.Convert(ctx, 123, "USDC", "USDC"); err != nil || got != 123 {
		t.Errorf("Expected identity conversion, got %d, %v", got, err)
	}
	// Unknown currencies are USD-equivalent with 6 decimals; no oracle needed.
	if got, err := c.Convert(ctx, 1_500_000, "PYUSD", "USDT"); err != nil || got != 1_500_000 {
		t.Errorf("Expected unknown currency to pass through as USD, got %d, %v", got, err)
	}
	if _, err := c.Convert(ctx, 1, "SOL", "USDC"); err == nil {
		t.Error("Expected oracle error to propagate")
	}
}

func TestUSDValue(t *testing.T) {
	c := NewConverter(DefaultRegistry(), fixedRate{rate: decimal.RequireFromString("1.5")})

	usd, err := c.USDValue(context.Background(), 4_000_000_000, "SOL")
	if err != nil {
		t.Fatalf("USDValue failed: %v", err)
	}
	if !usd.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected $6, got %s", usd)
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "currencies.yaml")
	data := "currencies:\n  - symbol: eth\n    decimals: 18\n    native: true\n  - symbol: usdc\n    decimals: 6\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	r, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if r.Native().Symbol != "ETH" || r.Native().Decimals != 18 {
		t.Errorf("Unexpected native currency %+v", r.Native())
	}
	if _, known := r.Lookup("USDC"); !known {
		t.Error("Expected USDC to be known")
	}

	if _, err := NewRegistry([]Currency{{Symbol: "USDC", Decimals: 6}}); err == nil {
		t.Error("Expected error without a native currency")
	}
}

func TestRegistrySymbols(t *testing.T) {
	got := DefaultRegistry().Symbols()
	want := []string{"SOL", "USDC", "USDT"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}
}
