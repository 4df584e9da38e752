package settings

// Hot-reloadable keys. Values are strings in every backend; durations use
// time.ParseDuration syntax.
const (
	WithdrawalPollInterval       = "withdrawal.poll_interval"
	WithdrawalBatchSize          = "withdrawal.batch_size"
	WithdrawalPercentage         = "withdrawal.percentage"
	WithdrawalMinLamports        = "withdrawal.min_lamports"
	WithdrawalMaxRetries         = "withdrawal.max_retries"
	WithdrawalPartialCount       = "withdrawal.partial_count"
	WithdrawalPartialMinLamports = "withdrawal.partial_min_lamports"
	WithdrawalLeaseTimeout       = "withdrawal.lease_timeout"
	WithdrawalRelayTimeout       = "withdrawal.relay_timeout"

	BatchPollInterval   = "batch.poll_interval"
	BatchFetchLimit     = "batch.fetch_limit"
	BatchThresholdUSD   = "batch.threshold_usd"
	BatchTargetCurrency = "batch.target_currency"

	DepositMinLamports      = "deposit.min_lamports"
	DepositMaxLamports      = "deposit.max_lamports"
	DepositMicroMaxLamports = "deposit.micro_max_lamports"
	DepositPrivacyPeriod    = "deposit.privacy_period"
	DepositRelayTimeout     = "deposit.relay_timeout"

	FeesPolicy        = "fees.policy"
	FeesPrivacyFixed  = "fees.privacy_fixed"
	FeesPrivacyBps    = "fees.privacy_bps"
	FeesSwapFixed     = "fees.swap_fixed"
	FeesSwapBps       = "fees.swap_bps"
	FeesOperatorFixed = "fees.operator_fixed"
	FeesOperatorBps   = "fees.operator_bps"
)
