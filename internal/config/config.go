/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"privacy-relay-settlement/internal/models"
)

// durations lists every duration setting with its default. Parsing them up
// front lets Load fail on the first invalid value.
var durations = map[string]time.Duration{
	"DB_CONN_MAX_LIFETIME":     5 * time.Minute,
	"DB_CONN_MAX_IDLE_TIME":    30 * time.Second,
	"DB_PING_TIMEOUT":          5 * time.Second,
	"DB_BUSY_TIMEOUT":          5 * time.Second,
	"RELAY_TIMEOUT":            60 * time.Second,
	"ORACLE_CACHE_TTL":         30 * time.Second,
	"ORACLE_MAX_STALENESS":     15 * time.Minute,
	"ORACLE_TIMEOUT":           10 * time.Second,
	"WITHDRAWAL_POLL_INTERVAL": time.Minute,
	"WITHDRAWAL_LEASE_TIMEOUT": 15 * time.Minute,
	"WITHDRAWAL_RELAY_TIMEOUT": 60 * time.Second,
	"BATCH_POLL_INTERVAL":      5 * time.Minute,
	"BATCH_RELAY_TIMEOUT":      90 * time.Second,
	"DEPOSIT_PRIVACY_PERIOD":   7 * 24 * time.Hour,
	"DEPOSIT_RELAY_TIMEOUT":    60 * time.Second,
}

func Load() (*models.Config, error) {
	d := make(map[string]time.Duration, len(durations))
	for key, def := range durations {
		v, err := getEnvDuration(key, def)
		if err != nil {
			return nil, err
		}
		d[key] = v
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "settlement.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: d["DB_CONN_MAX_LIFETIME"],
			ConnMaxIdleTime: d["DB_CONN_MAX_IDLE_TIME"],
			PingTimeout:     d["DB_PING_TIMEOUT"],
			BusyTimeout:     d["DB_BUSY_TIMEOUT"],
		},
		Relay: models.RelayConfig{
			BaseURL: getEnvString("RELAY_BASE_URL", ""),
			Timeout: d["RELAY_TIMEOUT"],
		},
		Oracle: models.OracleConfig{
			BaseURL:       getEnvString("ORACLE_BASE_URL", "https://api.coingecko.com/api/v3"),
			APIKey:        getEnvString("ORACLE_API_KEY", ""),
			CoinId:        getEnvString("ORACLE_COIN_ID", "solana"),
			CacheTTL:      d["ORACLE_CACHE_TTL"],
			MaxStaleness:  d["ORACLE_MAX_STALENESS"],
			Timeout:       d["ORACLE_TIMEOUT"],
			RatePerMinute: getEnvInt("ORACLE_RATE_PER_MINUTE", 30),
		},
		Settings: models.SettingsConfig{
			Backend:       getEnvString("SETTINGS_BACKEND", "static"),
			File:          getEnvString("SETTINGS_FILE", "settings.yaml"),
			RedisAddr:     getEnvString("SETTINGS_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnvString("SETTINGS_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("SETTINGS_REDIS_DB", 0),
			RedisKey:      getEnvString("SETTINGS_REDIS_KEY", "settlement:settings"),
		},
		Security: models.SecurityConfig{
			MasterKey: getEnvString("KEY_ENCRYPTION_MASTER_KEY", ""),
		},
		Withdrawal: models.WithdrawalConfig{
			PollInterval:       d["WITHDRAWAL_POLL_INTERVAL"],
			BatchSize:          getEnvInt("WITHDRAWAL_BATCH_SIZE", 10),
			Percentage:         getEnvInt("WITHDRAWAL_PERCENTAGE", 100),
			MinLamports:        getEnvInt64("WITHDRAWAL_MIN_LAMPORTS", 100_000_000),
			MaxRetries:         getEnvInt("WITHDRAWAL_MAX_RETRIES", 3),
			PartialCount:       getEnvInt("WITHDRAWAL_PARTIAL_COUNT", 0),
			PartialMinLamports: getEnvInt64("WITHDRAWAL_PARTIAL_MIN_LAMPORTS", 1_000_000_000),
			LeaseTimeout:       d["WITHDRAWAL_LEASE_TIMEOUT"],
			RelayTimeout:       d["WITHDRAWAL_RELAY_TIMEOUT"],
			TargetCurrency:     getEnvString("WITHDRAWAL_TARGET_CURRENCY", ""),
			Destination:        getEnvString("WITHDRAWAL_DESTINATION", ""),
		},
		Batch: models.BatchConfig{
			PollInterval:   d["BATCH_POLL_INTERVAL"],
			FetchLimit:     getEnvInt("BATCH_FETCH_LIMIT", 100),
			ThresholdUSD:   getEnvFloat("BATCH_THRESHOLD_USD", 10),
			TargetCurrency: getEnvString("BATCH_TARGET_CURRENCY", "USDC"),
			TreasuryScope:  getEnvString("BATCH_TREASURY_SCOPE", ""),
			RelayTimeout:   d["BATCH_RELAY_TIMEOUT"],
		},
		Deposit: models.DepositConfig{
			MinLamports:        getEnvInt64("DEPOSIT_MIN_LAMPORTS", 100_000_000),
			MaxLamports:        getEnvInt64("DEPOSIT_MAX_LAMPORTS", 0),
			MicroMaxLamports:   getEnvInt64("DEPOSIT_MICRO_MAX_LAMPORTS", 50_000_000),
			PrivacyPeriod:      d["DEPOSIT_PRIVACY_PERIOD"],
			RelayTimeout:       d["DEPOSIT_RELAY_TIMEOUT"],
			NativeCurrency:     getEnvString("DEPOSIT_NATIVE_CURRENCY", "SOL"),
			SettlementCurrency: getEnvString("DEPOSIT_SETTLEMENT_CURRENCY", "USDC"),
			CurrenciesFile:     getEnvString("CURRENCIES_FILE", ""),
		},
		Fees: models.FeeSettings{
			Policy:        getEnvString("FEES_POLICY", "operator_pays_all"),
			PrivacyFixed:  getEnvInt64("FEES_PRIVACY_FIXED", 6_000_000),
			PrivacyBps:    getEnvInt64("FEES_PRIVACY_BPS", 35),
			SwapFixed:     getEnvInt64("FEES_SWAP_FIXED", 0),
			SwapBps:       getEnvInt64("FEES_SWAP_BPS", 0),
			OperatorFixed: getEnvInt64("FEES_OPERATOR_FIXED", 0),
			OperatorBps:   getEnvInt64("FEES_OPERATOR_BPS", 0),
		},
		Alerts: models.AlertsConfig{
			KafkaBrokers: getEnvStringSlice("ALERTS_KAFKA_BROKERS"),
			KafkaTopic:   getEnvString("ALERTS_KAFKA_TOPIC", "settlement-alerts"),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER_NAME", ""),
		},
		Prime: models.PrimeConfig{
			AccessKey:     getEnvString("PRIME_ACCESS_KEY", ""),
			Passphrase:    getEnvString("PRIME_PASSPHRASE", ""),
			SigningKey:    getEnvString("PRIME_SIGNING_KEY", ""),
			PortfolioName: getEnvString("PRIME_PORTFOLIO_NAME", ""),
			WalletType:    getEnvString("PRIME_WALLET_TYPE", ""),
			Networks:      getEnvStringMap("PRIME_NETWORKS"),
		},
		Metrics: models.MetricsConfig{
			Addr: getEnvString("METRICS_ADDR", ":9090"),
		},
		Logging: models.LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			File:       getEnvString("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvStringSlice splits a comma separated list, dropping empty items.
func getEnvStringSlice(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvStringMap parses "SOL=solana-mainnet,USDC=solana-mainnet".
func getEnvStringMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvStringSlice(key) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
