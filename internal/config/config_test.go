package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Deposit.PrivacyPeriod != 7*24*time.Hour {
		t.Errorf("Expected a 7 day privacy period, got %s", cfg.Deposit.PrivacyPeriod)
	}
	if cfg.Withdrawal.Percentage != 100 || cfg.Withdrawal.MaxRetries != 3 {
		t.Errorf("Unexpected withdrawal defaults %+v", cfg.Withdrawal)
	}
	if cfg.Batch.ThresholdUSD != 10 {
		t.Errorf("Expected a $10 batch threshold, got %v", cfg.Batch.ThresholdUSD)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WITHDRAWAL_POLL_INTERVAL", "15s")
	t.Setenv("WITHDRAWAL_MIN_LAMPORTS", "2500000000")
	t.Setenv("BATCH_THRESHOLD_USD", "12.5")
	t.Setenv("ALERTS_KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("PRIME_NETWORKS", "SOL=solana-mainnet, USDC = solana-mainnet, broken")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Withdrawal.PollInterval != 15*time.Second {
		t.Errorf("Expected 15s, got %s", cfg.Withdrawal.PollInterval)
	}
	if cfg.Withdrawal.MinLamports != 2_500_000_000 {
		t.Errorf("Expected 2500000000, got %d", cfg.Withdrawal.MinLamports)
	}
	if cfg.Batch.ThresholdUSD != 12.5 {
		t.Errorf("Expected 12.5, got %v", cfg.Batch.ThresholdUSD)
	}
	if len(cfg.Alerts.KafkaBrokers) != 2 || cfg.Alerts.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("Unexpected brokers %v", cfg.Alerts.KafkaBrokers)
	}
	if len(cfg.Prime.Networks) != 2 || cfg.Prime.Networks["USDC"] != "solana-mainnet" {
		t.Errorf("Unexpected networks %v", cfg.Prime.Networks)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("DEPOSIT_PRIVACY_PERIOD", "a week")
	if _, err := Load(); err == nil {
		t.Error("Expected an invalid duration to fail Load")
	}
}
