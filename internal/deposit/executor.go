package deposit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"privacy-relay-settlement/internal/alerts"
	"privacy-relay-settlement/internal/conversion"
	"privacy-relay-settlement/internal/fees"
	"privacy-relay-settlement/internal/ledger"
	"privacy-relay-settlement/internal/metrics"
	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/relay"
	"privacy-relay-settlement/internal/security"
	"privacy-relay-settlement/internal/settings"
	"privacy-relay-settlement/internal/store"
)

// Request is one detected deposit ready to be settled.
type Request struct {
	UserId        string `validate:"required,max=128"`
	WalletAddress string `validate:"required,max=128"`
	Currency      string `validate:"required,alphanum,max=16"`
	Amount        int64  `validate:"gt=0"`
	// DetectedAmount is what the chain watcher saw; zero means Amount.
	DetectedAmount      int64  `validate:"gte=0"`
	EncryptedSigningKey string `validate:"required,base64"`
}

// Crediter is the part of the Credit Ledger the executor needs.
type Crediter interface {
	AddCredit(ctx context.Context, req ledger.CreditRequest) (*ledger.Result, error)
}

type Dependencies struct {
	Sessions  store.SessionStore
	Ledger    Crediter
	Relay     relay.Client
	Keys      security.Decrypter
	Converter *conversion.Converter
	Settings  *settings.Reader
	Alerts    alerts.Notifier
	Metrics   *metrics.Recorder
}

// Executor settles single deposits: bounds check, relay deposit (or micro
// ingestion), session creation, then ledger credit.
type Executor struct {
	deps     Dependencies
	defaults models.DepositConfig
	fees     models.FeeSettings
	validate *validator.Validate
	now      func() time.Time
}

func NewExecutor(deps Dependencies, defaults models.DepositConfig, feeDefaults models.FeeSettings) *Executor {
	if deps.Settings == nil {
		deps.Settings = settings.NewReader(nil)
	}
	return &Executor{
		deps:     deps,
		defaults: defaults,
		fees:     feeDefaults,
		validate: validator.New(),
		now:      time.Now,
	}
}

// limits is the per-call snapshot of the hot-reloadable deposit settings.
type limits struct {
	min           int64
	max           int64
	microMax      int64
	privacyPeriod time.Duration
	relayTimeout  time.Duration
}

func (e *Executor) loadLimits(ctx context.Context) limits {
	r := e.deps.Settings
	return limits{
		min:           r.Int64(ctx, settings.DepositMinLamports, e.defaults.MinLamports),
		max:           r.Int64(ctx, settings.DepositMaxLamports, e.defaults.MaxLamports),
		microMax:      r.Int64(ctx, settings.DepositMicroMaxLamports, e.defaults.MicroMaxLamports),
		privacyPeriod: r.Duration(ctx, settings.DepositPrivacyPeriod, e.defaults.PrivacyPeriod),
		relayTimeout:  r.Duration(ctx, settings.DepositRelayTimeout, e.defaults.RelayTimeout),
	}
}

// FeeConfig returns the current fee schedule. An unknown policy in the
// settings store falls back to the configured default.
func (e *Executor) FeeConfig(ctx context.Context) (models.FeeConfig, error) {
	r := e.deps.Settings

	policyName := r.String(ctx, settings.FeesPolicy, e.fees.Policy)
	policy, err := models.ParseFeePolicy(policyName)
	if err != nil {
		zap.L().Warn("Invalid fee policy in settings, using default",
			zap.String("policy", policyName), zap.String("default", e.fees.Policy))
		policy, err = models.ParseFeePolicy(e.fees.Policy)
		if err != nil {
			return models.FeeConfig{}, fmt.Errorf("%w: default fee policy: %v", store.ErrValidation, err)
		}
	}

	cfg := models.FeeConfig{
		Policy: policy,
		Privacy: models.FeeComponent{
			Fixed: r.Int64(ctx, settings.FeesPrivacyFixed, e.fees.PrivacyFixed),
			Bps:   r.Int64(ctx, settings.FeesPrivacyBps, e.fees.PrivacyBps),
		},
		Swap: models.FeeComponent{
			Fixed: r.Int64(ctx, settings.FeesSwapFixed, e.fees.SwapFixed),
			Bps:   r.Int64(ctx, settings.FeesSwapBps, e.fees.SwapBps),
		},
		Operator: models.FeeComponent{
			Fixed: r.Int64(ctx, settings.FeesOperatorFixed, e.fees.OperatorFixed),
			Bps:   r.Int64(ctx, settings.FeesOperatorBps, e.fees.OperatorBps),
		},
	}
	if err := fees.Validate(cfg); err != nil {
		return models.FeeConfig{}, err
	}
	return cfg, nil
}

// Execute settles one deposit. When the relay accepted the funds but the
// ledger credit failed, the returned result still carries the session next
// to the error so the caller can reconcile.
func (e *Executor) Execute(ctx context.Context, req Request) (*models.DepositResult, error) {
	if err := e.validate.Struct(req); err != nil {
		e.deps.Metrics.Deposit(store.Kind(store.ErrValidation))
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if req.DetectedAmount == 0 {
		req.DetectedAmount = req.Amount
	}

	lim := e.loadLimits(ctx)
	registry := e.deps.Converter.Registry()
	currency, _ := registry.Lookup(req.Currency)
	native := registry.Native()

	zap.L().Info("Executing deposit",
		zap.String("user_id", req.UserId),
		zap.String("currency", currency.Symbol),
		zap.Int64("amount", req.Amount))

	micro := currency.Native && lim.microMax > 0 && req.Amount <= lim.microMax
	if !micro {
		if err := e.checkBounds(ctx, req.Amount, currency.Symbol, native.Symbol, lim); err != nil {
			e.deps.Metrics.Deposit(store.Kind(err))
			return nil, err
		}
	}

	sessionId := uuid.New().String()
	now := e.now().UTC()

	var receipt *models.DepositReceipt
	if !micro {
		var err error
		receipt, err = e.relayDeposit(ctx, req, currency.Symbol, lim.relayTimeout)
		if err != nil {
			e.deps.Metrics.Deposit(store.Kind(err))
			return nil, err
		}
	}

	// Once the relay holds the funds, pricing errors no longer abort: the
	// session is persisted first and the credit failure is reported.
	var breakdown models.FeeBreakdown
	var deduction, credited int64
	feeCfg, creditErr := e.FeeConfig(ctx)
	if creditErr == nil {
		breakdown, deduction, credited, creditErr = e.price(ctx, req.Amount, currency.Symbol, feeCfg)
	}
	if creditErr != nil && receipt == nil {
		e.deps.Metrics.Deposit(store.Kind(creditErr))
		return nil, creditErr
	}

	params := store.CreateSessionParams{
		Id:             sessionId,
		UserId:         req.UserId,
		WalletAddress:  req.WalletAddress,
		Currency:       currency.Symbol,
		DetectedAmount: req.DetectedAmount,
		DepositAmount:  req.Amount,
		CreditedAmount: credited,
		// Write-once; never decrypted here.
		EncryptedSigningKey:   req.EncryptedSigningKey,
		WithdrawalAvailableAt: now.Add(lim.privacyPeriod),
		CreatedAt:             now,
	}
	if micro {
		params.DepositType = models.DepositTypeMicro
		params.Status = models.SessionStatusPendingBatch
	} else {
		params.DepositType = models.DepositTypeRelay
		params.Status = models.SessionStatusCompleted
		params.RelayTxRef = receipt.TxRef
		params.RelayAccountId = receipt.AccountId
	}

	session, err := e.deps.Sessions.CreateSession(ctx, params)
	if err != nil {
		if receipt != nil {
			e.reconciliationRequired(ctx, params, receipt.TxRef, credited, err)
		}
		e.deps.Metrics.Deposit(store.Kind(err))
		return nil, fmt.Errorf("failed to create deposit session: %w", err)
	}

	result := &models.DepositResult{
		SessionId:      session.Id,
		Status:         session.Status.String(),
		RelayTxRef:     session.RelayTxRef,
		DepositAmount:  session.DepositAmount,
		FeeDeduction:   deduction,
		CreditCurrency: e.settlementCurrency(),
		AvailableAt:    session.WithdrawalAvailableAt,
	}

	if creditErr == nil {
		creditErr = e.credit(ctx, session, credited, breakdown, deduction)
	}
	if creditErr != nil {
		e.reconciliationRequired(ctx, params, session.RelayTxRef, credited, creditErr)
		e.deps.Metrics.Deposit("credit_failed")
		result.Error = creditErr.Error()
		return result, fmt.Errorf("deposit %s accepted but not credited: %w", session.Id, creditErr)
	}

	result.Success = true
	result.CreditedAmount = credited
	e.deps.Metrics.Deposit("ok")

	zap.L().Info("Deposit settled",
		zap.String("session_id", session.Id),
		zap.String("user_id", session.UserId),
		zap.String("status", session.Status.String()),
		zap.String("deposit_type", session.DepositType.String()),
		zap.Int64("deposit_amount", session.DepositAmount),
		zap.Int64("fee_deduction", deduction),
		zap.Int64("credited_amount", credited),
		zap.Time("withdrawal_available_at", session.WithdrawalAvailableAt))
	return result, nil
}

// checkBounds compares the native-equivalent amount with the configured limits.
// A zero max disables the upper bound.
func (e *Executor) checkBounds(ctx context.Context, amount int64, currency, native string, lim limits) error {
	nativeAmount := amount
	if currency != native {
		converted, err := e.deps.Converter.Convert(ctx, amount, currency, native)
		if err != nil {
			return fmt.Errorf("failed to convert deposit for bounds check: %w", err)
		}
		nativeAmount = converted
	}

	if nativeAmount < lim.min || (lim.max > 0 && nativeAmount > lim.max) {
		return fmt.Errorf("%w: amount=%d min=%d max=%d", store.ErrAmountOutOfBounds, nativeAmount, lim.min, lim.max)
	}
	return nil
}

func (e *Executor) relayDeposit(ctx context.Context, req Request, currency string, timeout time.Duration) (*models.DepositReceipt, error) {
	var key security.SecretBuffer
	defer key.Wipe()

	if err := e.deps.Keys.DecryptInto(req.EncryptedSigningKey, &key); err != nil {
		zap.L().Error("Failed to open deposit signing key", zap.String("user_id", req.UserId), zap.Error(err))
		return nil, err
	}

	callCtx, cancel := relay.CallContext(ctx, timeout)
	defer cancel()

	receipt, err := e.deps.Relay.Deposit(callCtx, &key, relay.DepositRequest{Amount: req.Amount, Currency: currency})
	key.Wipe()
	if err != nil {
		err = relay.Normalize(err)
		zap.L().Error("Relay deposit failed",
			zap.String("user_id", req.UserId),
			zap.Int64("amount", req.Amount),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Relay deposit accepted",
		zap.String("user_id", req.UserId),
		zap.String("relay_tx_ref", receipt.TxRef))
	return receipt, nil
}

// price applies the fee policy and converts the net amount to the settlement currency.
func (e *Executor) price(ctx context.Context, amount int64, currency string, cfg models.FeeConfig) (models.FeeBreakdown, int64, int64, error) {
	breakdown, err := fees.Calculate(amount, cfg)
	if err != nil {
		return models.FeeBreakdown{}, 0, 0, err
	}
	deduction, err := fees.UserDeduction(breakdown, cfg.Policy)
	if err != nil {
		return breakdown, 0, 0, err
	}

	net := amount - deduction
	if net < 0 {
		net = 0
	}
	credited, err := e.deps.Converter.Convert(ctx, net, currency, e.settlementCurrency())
	if err != nil {
		return breakdown, deduction, 0, err
	}
	return breakdown, deduction, credited, nil
}

func (e *Executor) credit(ctx context.Context, session *models.DepositSession, credited int64, b models.FeeBreakdown, deduction int64) error {
	if credited <= 0 {
		zap.L().Warn("Deposit converts to zero credit, nothing to apply",
			zap.String("session_id", session.Id),
			zap.Int64("deposit_amount", session.DepositAmount),
			zap.Int64("fee_deduction", deduction))
		return nil
	}

	_, err := e.deps.Ledger.AddCredit(ctx, ledger.CreditRequest{
		UserId:         session.UserId,
		Currency:       e.settlementCurrency(),
		Amount:         credited,
		Type:           models.TransactionTypeDeposit,
		IdempotencyKey: "deposit:" + session.Id,
		ReferenceType:  "deposit_session",
		ReferenceId:    session.Id,
		Metadata: map[string]string{
			"deposit_currency": session.Currency,
			"deposit_amount":   decimal.NewFromInt(session.DepositAmount).String(),
			"privacy_fee":      decimal.NewFromInt(b.PrivacyFee).String(),
			"swap_fee":         decimal.NewFromInt(b.SwapFee).String(),
			"operator_fee":     decimal.NewFromInt(b.OperatorFee).String(),
			"fee_deduction":    decimal.NewFromInt(deduction).String(),
			"relay_tx_ref":     session.RelayTxRef,
		},
	})
	return err
}

func (e *Executor) settlementCurrency() string {
	if e.defaults.SettlementCurrency != "" {
		return e.defaults.SettlementCurrency
	}
	return e.deps.Converter.Registry().Native().Symbol
}

// reconciliationRequired records a deposit the relay accepted but the ledger
// does not reflect. There is no automatic rollback.
func (e *Executor) reconciliationRequired(ctx context.Context, p store.CreateSessionParams, txRef string, intended int64, cause error) {
	zap.L().Error("Deposit not credited, manual reconciliation required",
		zap.String("session_id", p.Id),
		zap.String("user_id", p.UserId),
		zap.String("relay_tx_ref", txRef),
		zap.String("currency", p.Currency),
		zap.Int64("deposit_amount", p.DepositAmount),
		zap.Int64("intended_credit", intended),
		zap.Error(cause))

	if e.deps.Alerts == nil {
		return
	}
	alert := models.Alert{
		Kind:      models.AlertKindDepositCreditFailed,
		SessionId: p.Id,
		UserId:    p.UserId,
		Message:   "deposit accepted by relay but not credited",
		Details: map[string]string{
			"relay_tx_ref":    txRef,
			"deposit_amount":  decimal.NewFromInt(p.DepositAmount).String(),
			"intended_credit": decimal.NewFromInt(intended).String(),
			"error":           cause.Error(),
		},
	}
	if err := e.deps.Alerts.Notify(ctx, alert); err != nil {
		zap.L().Warn("Failed to raise deposit credit alert", zap.String("session_id", p.Id), zap.Error(err))
	}
}
