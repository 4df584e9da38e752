package withdrawal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/relay"
	"privacy-relay-settlement/internal/security"
	"privacy-relay-settlement/internal/store"
)

// execute withdraws p.amount from a claimed session and records the outcome.
// It never returns an error: failures are written back to the session.
func (w *Worker) execute(ctx context.Context, p plan, cfg cycleSettings) models.WithdrawalResult {
	s := p.session
	result := models.WithdrawalResult{
		SessionId:   s.Id,
		Requested:   p.amount,
		Intentional: p.intentional,
	}

	currency := cfg.targetCurrency
	if currency == "" {
		currency = s.Currency
	}
	destination, err := w.deps.Destinations.Destination(ctx, currency)
	if err != nil {
		return w.fail(ctx, s, result, fmt.Errorf("failed to resolve destination: %w", err), cfg)
	}

	// A claim taken over after our lease went stale belongs to another worker,
	// which will pay the session itself.
	if err := w.deps.Sessions.RenewClaim(ctx, s.Id, s.ClaimId, w.now().UTC()); err != nil {
		zap.L().Warn("Withdrawal claim no longer held, skipping session",
			zap.String("session_id", s.Id),
			zap.String("claim_id", s.ClaimId),
			zap.Error(err))
		w.deps.Metrics.Withdrawal("claim_lost", 0)
		result.Status = models.SessionStatusProcessing.String()
		result.Error = err.Error()
		return result
	}

	receipt, err := w.callRelay(ctx, s, relay.WithdrawRequest{
		Amount:         p.amount,
		TargetCurrency: cfg.targetCurrency,
		Destination:    destination,
	}, cfg)
	if err != nil {
		return w.fail(ctx, s, result, err, cfg)
	}
	if receipt.Amount <= 0 {
		return w.fail(ctx, s, result, fmt.Errorf("%w: relay paid out nothing (tx %s)", store.ErrInternal, receipt.TxRef), cfg)
	}

	var percentage *float64
	if p.intentional && s.DepositAmount > 0 {
		pct, _ := decimal.NewFromInt(receipt.Amount).
			Div(decimal.NewFromInt(s.DepositAmount)).
			Mul(decimal.NewFromInt(100)).
			Round(2).
			Float64()
		percentage = &pct
	}

	entry, updated, err := w.deps.Sessions.RecordWithdrawal(ctx, store.RecordWithdrawalParams{
		SessionId:         s.Id,
		ClaimId:           s.ClaimId,
		Amount:            receipt.Amount,
		Fee:               receipt.Fee,
		TxRef:             receipt.TxRef,
		PercentageOfTotal: percentage,
		Now:               w.now().UTC(),
	})
	if err != nil {
		// Funds left the relay but the session does not show it.
		zap.L().Error("Withdrawal paid but not recorded, manual reconciliation required",
			zap.String("session_id", s.Id),
			zap.String("user_id", s.UserId),
			zap.String("tx_ref", receipt.TxRef),
			zap.Int64("amount", receipt.Amount),
			zap.Error(err))
		w.alert(ctx, models.Alert{
			Kind:      models.AlertKindWithdrawalNotRecorded,
			SessionId: s.Id,
			UserId:    s.UserId,
			Message:   "withdrawal paid by the relay but not recorded; reconcile before the claim lease expires",
			Details: map[string]string{
				"tx_ref": receipt.TxRef,
				"amount": fmt.Sprint(receipt.Amount),
				"error":  err.Error(),
			},
			CreatedAt: w.now().UTC(),
		})
		result.Withdrawn = receipt.Amount
		result.TxRef = receipt.TxRef
		result.Status = models.SessionStatusProcessing.String()
		result.Error = err.Error()
		w.deps.Metrics.Withdrawal("record_failed", receipt.Amount)
		return result
	}

	result.Withdrawn = entry.Amount
	result.TxRef = entry.TxRef
	result.FullyWithdrawn = entry.FullyWithdrawn
	result.Status = updated.Status.String()
	w.deps.Metrics.Withdrawal("ok", entry.Amount)

	zap.L().Info("Withdrawal recorded",
		zap.String("session_id", s.Id),
		zap.String("tx_ref", entry.TxRef),
		zap.Int64("amount", entry.Amount),
		zap.Int64("cumulative_withdrawn", entry.CumulativeWithdrawn),
		zap.Int64("remaining", entry.Remaining),
		zap.Bool("intentional_partial", p.intentional),
		zap.String("status", result.Status))

	// An intentional partial is a request for less; a shortfall against what
	// was requested is the relay running dry, flagged or not.
	if receipt.Amount < p.amount || (receipt.IsPartial && !p.intentional) {
		zap.L().Warn("Relay reported an unexpected partial withdrawal",
			zap.String("session_id", s.Id),
			zap.Int64("requested", p.amount),
			zap.Int64("paid", receipt.Amount))
		w.alert(ctx, models.Alert{
			Kind:      models.AlertKindUnexpectedPartialWithdrawal,
			SessionId: s.Id,
			UserId:    s.UserId,
			Message:   "relay paid less than requested",
			Details: map[string]string{
				"requested": decimal.NewFromInt(p.amount).String(),
				"paid":      decimal.NewFromInt(receipt.Amount).String(),
				"tx_ref":    receipt.TxRef,
			},
		})
	}
	return result
}

// callRelay opens the session key just for the duration of the relay call.
func (w *Worker) callRelay(ctx context.Context, s models.DepositSession, req relay.WithdrawRequest, cfg cycleSettings) (*models.WithdrawalReceipt, error) {
	var key security.SecretBuffer
	defer key.Wipe()

	if err := w.deps.Keys.DecryptInto(s.EncryptedSigningKey, &key); err != nil {
		return nil, err
	}

	callCtx, cancel := relay.CallContext(ctx, cfg.relayTimeout)
	defer cancel()

	receipt, err := w.deps.Relay.Withdraw(callCtx, &key, req)
	key.Wipe()
	if err != nil {
		return nil, relay.Normalize(err)
	}
	return receipt, nil
}

func (w *Worker) fail(ctx context.Context, s models.DepositSession, result models.WithdrawalResult, cause error, cfg cycleSettings) models.WithdrawalResult {
	permanent := !relay.Retryable(cause)
	result.Error = cause.Error()
	w.deps.Metrics.Withdrawal(store.Kind(cause), 0)

	updated, err := w.deps.Sessions.RecordWithdrawalFailure(ctx, store.WithdrawalFailureParams{
		SessionId:  s.Id,
		ClaimId:    s.ClaimId,
		Error:      cause.Error(),
		MaxRetries: cfg.maxRetries,
		Permanent:  permanent,
		Now:        w.now().UTC(),
	})
	if err != nil {
		zap.L().Error("Failed to record withdrawal failure",
			zap.String("session_id", s.Id),
			zap.NamedError("cause", cause),
			zap.Error(err))
		result.Status = models.SessionStatusProcessing.String()
		return result
	}
	result.Status = updated.Status.String()

	zap.L().Warn("Withdrawal attempt failed",
		zap.String("session_id", s.Id),
		zap.Int("attempts", updated.ProcessingAttempts),
		zap.Int("max_retries", cfg.maxRetries),
		zap.Bool("permanent", permanent),
		zap.String("status", result.Status),
		zap.Error(cause))

	if updated.Status == models.SessionStatusFailed {
		w.alert(ctx, models.Alert{
			Kind:      models.AlertKindRetriesExhausted,
			SessionId: s.Id,
			UserId:    s.UserId,
			Message:   "withdrawal failed permanently, operator action required",
			Details: map[string]string{
				"attempts":         fmt.Sprint(updated.ProcessingAttempts),
				"withdrawn_amount": decimal.NewFromInt(updated.WithdrawnAmount).String(),
				"remaining":        decimal.NewFromInt(updated.Remaining()).String(),
				"last_error":       cause.Error(),
			},
		})
	}
	return result
}
