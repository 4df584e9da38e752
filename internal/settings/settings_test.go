package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func TestReader_TypedGetters(t *testing.T) {
	r := NewReader(MapStore{
		WithdrawalPollInterval: "45s",
		WithdrawalBatchSize:    "25",
		WithdrawalMinLamports:  "1000000000",
		BatchThresholdUSD:      "12.5",
		"feature.enabled":      "true",
		BatchTargetCurrency:    "USDT",
	})
	ctx := context.Background()

	if got := r.Duration(ctx, WithdrawalPollInterval, time.Minute); got != 45*time.Second {
		t.Errorf("Duration = %v", got)
	}
	if got := r.Int(ctx, WithdrawalBatchSize, 10); got != 25 {
		t.Errorf("Int = %d", got)
	}
	if got := r.Int64(ctx, WithdrawalMinLamports, 0); got != 1_000_000_000 {
		t.Errorf("Int64 = %d", got)
	}
	if got := r.Decimal(ctx, BatchThresholdUSD, decimal.NewFromInt(10)); !got.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("Decimal = %s", got)
	}
	if got := r.Bool(ctx, "feature.enabled", false); !got {
		t.Error("Bool = false")
	}
	if got := r.String(ctx, BatchTargetCurrency, "USDC"); got != "USDT" {
		t.Errorf("String = %s", got)
	}
}

func TestReader_FallsBackToDefaults(t *testing.T) {
	r := NewReader(MapStore{
		WithdrawalPollInterval: "soon",
		WithdrawalBatchSize:    "many",
		WithdrawalLeaseTimeout: "-5m",
	})
	ctx := context.Background()

	if got := r.Duration(ctx, WithdrawalPollInterval, time.Minute); got != time.Minute {
		t.Errorf("Expected default for unparsable duration, got %v", got)
	}
	if got := r.Duration(ctx, WithdrawalLeaseTimeout, 10*time.Minute); got != 10*time.Minute {
		t.Errorf("Expected default for negative duration, got %v", got)
	}
	if got := r.Int(ctx, WithdrawalBatchSize, 10); got != 10 {
		t.Errorf("Expected default for unparsable int, got %d", got)
	}
	if got := r.Int(ctx, WithdrawalMaxRetries, 3); got != 3 {
		t.Errorf("Expected default for missing key, got %d", got)
	}
}

func TestReader_StoreErrorUsesDefault(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	r := NewReader(NewRedisStore(client, "settlement:settings"))
	if got := r.Int(context.Background(), WithdrawalBatchSize, 7); got != 7 {
		t.Errorf("Expected default when redis is unreachable, got %d", got)
	}
}

func TestFileStore_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	write := func(content string, mtime time.Time) {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}
	}

	base := time.Now().Add(-time.Hour)
	write("withdrawal:\n  batch_size: 10\n  poll_interval: 30s\n", base)

	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	r := NewReader(fs)
	ctx := context.Background()

	if got := r.Int(ctx, WithdrawalBatchSize, 0); got != 10 {
		t.Errorf("Expected 10, got %d", got)
	}
	if got := r.Duration(ctx, WithdrawalPollInterval, 0); got != 30*time.Second {
		t.Errorf("Expected 30s, got %v", got)
	}

	write("withdrawal:\n  batch_size: 40\n", base.Add(time.Minute))
	if got := r.Int(ctx, WithdrawalBatchSize, 0); got != 40 {
		t.Errorf("Expected reloaded value 40, got %d", got)
	}
	if _, ok, _ := fs.Get(ctx, WithdrawalPollInterval); ok {
		t.Error("Expected removed key to be gone after reload")
	}
}
