package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Relay      RelayConfig
	Oracle     OracleConfig
	Settings   SettingsConfig
	Security   SecurityConfig
	Withdrawal WithdrawalConfig
	Batch      BatchConfig
	Deposit    DepositConfig
	Fees       FeeSettings
	Alerts     AlertsConfig
	Formance   FormanceConfig
	Prime      PrimeConfig
	Metrics    MetricsConfig
	Logging    LoggingConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// RelayConfig holds the privacy relay endpoint settings
type RelayConfig struct {
	BaseURL string
	Timeout time.Duration
}

// OracleConfig holds price oracle settings
type OracleConfig struct {
	BaseURL       string
	APIKey        string
	CoinId        string
	CacheTTL      time.Duration
	MaxStaleness  time.Duration
	Timeout       time.Duration
	RatePerMinute int
}

// SettingsConfig selects the runtime settings backend ("file", "redis" or "static")
type SettingsConfig struct {
	Backend       string
	File          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

type SecurityConfig struct {
	MasterKey string
}

// WithdrawalConfig holds withdrawal worker defaults; each field can be
// overridden at runtime through the settings store.
type WithdrawalConfig struct {
	PollInterval       time.Duration
	BatchSize          int
	Percentage         int
	MinLamports        int64
	MaxRetries         int
	PartialCount       int
	PartialMinLamports int64
	LeaseTimeout       time.Duration
	RelayTimeout       time.Duration
	TargetCurrency     string
	Destination        string
}

// BatchConfig holds micro-batch worker defaults
type BatchConfig struct {
	PollInterval   time.Duration
	FetchLimit     int
	ThresholdUSD   float64
	TargetCurrency string
	TreasuryScope  string
	RelayTimeout   time.Duration
}

// DepositConfig holds deposit executor defaults
type DepositConfig struct {
	MinLamports        int64
	MaxLamports        int64
	MicroMaxLamports   int64
	PrivacyPeriod      time.Duration
	RelayTimeout       time.Duration
	NativeCurrency     string
	SettlementCurrency string
	CurrenciesFile     string
}

// FeeSettings holds the default fee schedule
type FeeSettings struct {
	Policy        string
	PrivacyFixed  int64
	PrivacyBps    int64
	SwapFixed     int64
	SwapBps       int64
	OperatorFixed int64
	OperatorBps   int64
}

// AlertsConfig holds admin notification sink settings
type AlertsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// FormanceConfig holds Formance Stack connection settings for the journal mirror
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// PrimeConfig holds Coinbase Prime settings used to resolve the settlement wallet
type PrimeConfig struct {
	AccessKey     string
	Passphrase    string
	SigningKey    string
	PortfolioName string
	WalletType    string
	Networks      map[string]string
}

type MetricsConfig struct {
	Addr string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}
