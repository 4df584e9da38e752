package common

import (
	"testing"

	"privacy-relay-settlement/internal/conversion"
)

func TestFormatAmount(t *testing.T) {
	registry := conversion.DefaultRegistry()

	tests := []struct {
		amount   int64
		currency string
		want     string
	}{
		{1_500_000_000, "SOL", "1.5 SOL"},
		{80_000_000, "sol", "0.08 SOL"},
		{12_000_000, "USDC", "12 USDC"},
		{1, "USDT", "0.000001 USDT"},
		{0, "SOL", "0 SOL"},
	}
	for _, tt := range tests {
		if got := FormatAmount(registry, tt.amount, tt.currency); got != tt.want {
			t.Errorf("FormatAmount(%d, %s) = %q, want %q", tt.amount, tt.currency, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	registry := conversion.DefaultRegistry()

	got, err := ParseAmount(registry, "1.5", "SOL")
	if err != nil || got != 1_500_000_000 {
		t.Errorf("Expected 1500000000, got %d (%v)", got, err)
	}
	got, err = ParseAmount(registry, "25", "usdc")
	if err != nil || got != 25_000_000 {
		t.Errorf("Expected 25000000, got %d (%v)", got, err)
	}

	for _, bad := range []string{"", "abc", "0", "-1", "0.0000001"} {
		if _, err := ParseAmount(registry, bad, "USDC"); err == nil {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
}

func TestShortId(t *testing.T) {
	if got := ShortId(""); got != "none" {
		t.Errorf("Expected none, got %q", got)
	}
	if got := ShortId("abc"); got != "abc" {
		t.Errorf("Expected abc, got %q", got)
	}
	if got := ShortId("01HZX3K4M5N6P7Q8R9S0T1V2W3"); got != "01HZX3K4M5N6..." {
		t.Errorf("Unexpected %q", got)
	}
}
