package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/relay"
	"privacy-relay-settlement/internal/security"
	"privacy-relay-settlement/internal/store"
)

// ErrSwapFailed is returned when the relay rejected or failed the consolidated swap.
var ErrSwapFailed = fmt.Errorf("%w: consolidated swap failed", store.ErrServiceUnavailable)

// CycleReport summarizes one pass of the micro-batch worker.
type CycleReport struct {
	Fetched  int
	Total    int64
	TotalUSD decimal.Decimal
	BatchId  string
	TxRef    string
	Batched  int
}

// RunCycle fetches pending micro deposits and swaps them together when their
// combined value reaches the threshold. Only the fetched sessions take part:
// the total is summed from that set, never from a separate aggregate.
func (w *Worker) RunCycle(ctx context.Context) (*CycleReport, error) {
	cfg := w.loadSettings(ctx)
	report := &CycleReport{}

	pending, err := w.deps.Sessions.FetchPendingBatch(ctx, cfg.fetchLimit)
	if err != nil {
		w.deps.Metrics.BatchCycle(store.Kind(err))
		return nil, fmt.Errorf("failed to fetch pending batch: %w", err)
	}

	native := w.deps.Converter.Registry().Native()
	ids := make([]string, 0, len(pending))
	for _, s := range pending {
		if s.Currency != native.Symbol {
			zap.L().Warn("Skipping non-native session in micro-batch",
				zap.String("session_id", s.Id),
				zap.String("currency", s.Currency))
			continue
		}
		ids = append(ids, s.Id)
		report.Total += s.DepositAmount
	}
	report.Fetched = len(ids)
	if len(ids) == 0 {
		w.deps.Metrics.BatchCycle("empty")
		return report, nil
	}

	usd, err := w.deps.Converter.USDValue(ctx, report.Total, native.Symbol)
	if err != nil {
		w.deps.Metrics.BatchCycle(store.Kind(err))
		return report, fmt.Errorf("failed to price pending batch: %w", err)
	}
	report.TotalUSD = usd

	if usd.LessThan(cfg.thresholdUSD) {
		zap.L().Debug("Pending micro deposits below threshold",
			zap.Int("sessions", len(ids)),
			zap.Int64("total", report.Total),
			zap.String("total_usd", usd.StringFixed(2)),
			zap.String("threshold_usd", cfg.thresholdUSD.StringFixed(2)))
		w.deps.Metrics.BatchCycle("below_threshold")
		return report, nil
	}

	treasury, err := w.deps.Treasury.FindTreasuryForScope(ctx, cfg.scope)
	if err != nil {
		w.deps.Metrics.BatchCycle(store.Kind(err))
		return report, fmt.Errorf("failed to load treasury key: %w", err)
	}

	batchId := w.newBatchId()
	if err := w.deps.Sessions.ReserveBatch(ctx, ids, batchId, w.now().UTC()); err != nil {
		// Another worker got there first. Its batch owns these sessions.
		if errors.Is(err, store.ErrConcurrentModification) {
			zap.L().Info("Micro-batch sessions already reserved elsewhere", zap.String("batch_id", batchId))
			w.deps.Metrics.BatchCycle("conflict")
			return report, nil
		}
		w.deps.Metrics.BatchCycle(store.Kind(err))
		return report, fmt.Errorf("failed to reserve batch %s: %w", batchId, err)
	}
	report.BatchId = batchId

	receipt, err := w.swap(ctx, treasury, relay.SwapRequest{
		Amount:         report.Total,
		Currency:       native.Symbol,
		TargetCurrency: cfg.targetCurrency,
	}, cfg)
	if err == nil && !receipt.Success {
		err = fmt.Errorf("%w: relay reported failure (tx %s)", ErrSwapFailed, receipt.TxRef)
	}
	if err != nil {
		if swapOutcomeUnknown(err) {
			w.holdUnconfirmed(ctx, batchId, report, err)
		} else {
			w.releaseFailed(ctx, batchId, report, err)
		}
		return report, fmt.Errorf("batch %s: %w", batchId, err)
	}
	report.TxRef = receipt.TxRef

	marked, err := w.deps.Sessions.MarkBatched(ctx, batchId, receipt.TxRef, w.now().UTC())
	if err != nil || marked != len(ids) {
		// The swap executed; the sessions stay in batching until an operator settles them.
		zap.L().Error("Swap executed but batch not fully recorded, manual reconciliation required",
			zap.String("batch_id", batchId),
			zap.String("tx_ref", receipt.TxRef),
			zap.Int("reserved", len(ids)),
			zap.Int("marked", marked),
			zap.Error(err))
		w.deps.Metrics.BatchCycle("record_failed")
		if err == nil {
			err = fmt.Errorf("%w: marked %d of %d sessions", store.ErrInternal, marked, len(ids))
		}
		return report, fmt.Errorf("batch %s: %w", batchId, err)
	}
	report.Batched = marked
	w.deps.Metrics.BatchCycle("ok")
	return report, nil
}

// swap opens the treasury key just for the duration of the relay call.
func (w *Worker) swap(ctx context.Context, treasury *models.TreasuryConfig, req relay.SwapRequest, cfg cycleSettings) (*models.SwapReceipt, error) {
	var key security.SecretBuffer
	defer key.Wipe()

	if err := w.deps.Keys.DecryptInto(treasury.EncryptedKey, &key); err != nil {
		return nil, err
	}

	callCtx, cancel := relay.CallContext(ctx, cfg.relayTimeout)
	defer cancel()

	receipt, err := w.deps.Relay.BatchSwap(callCtx, &key, req)
	key.Wipe()
	if err != nil {
		return nil, relay.Normalize(err)
	}
	return receipt, nil
}

func (w *Worker) releaseFailed(ctx context.Context, batchId string, report *CycleReport, cause error) {
	released, err := w.deps.Sessions.ReleaseBatch(ctx, batchId, w.now().UTC())
	if err != nil {
		zap.L().Error("Failed to release micro-batch after swap failure",
			zap.String("batch_id", batchId),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
	w.deps.Metrics.BatchCycle("swap_failed")

	zap.L().Error("Micro-batch swap failed",
		zap.String("batch_id", batchId),
		zap.Int("sessions", report.Fetched),
		zap.Int("released", released),
		zap.Int64("total", report.Total),
		zap.Error(cause))

	w.alert(ctx, models.Alert{
		Kind:    models.AlertKindBatchSwapFailed,
		BatchId: batchId,
		Message: "consolidated swap failed, sessions returned to pending",
		Details: map[string]string{
			"sessions":  fmt.Sprint(report.Fetched),
			"released":  fmt.Sprint(released),
			"total":     decimal.NewFromInt(report.Total).String(),
			"total_usd": report.TotalUSD.StringFixed(2),
			"error":     cause.Error(),
		},
	})
}

// swapOutcomeUnknown reports whether a failed swap may still have settled at
// the relay. Timeouts and unavailability leave the outcome open; a reported
// failure or a rejected request does not.
func swapOutcomeUnknown(err error) bool {
	return errors.Is(err, store.ErrServiceUnavailable) && !errors.Is(err, ErrSwapFailed)
}

// holdUnconfirmed leaves the batch in batching. Releasing it would let the
// next cycle swap the same funds a second time.
func (w *Worker) holdUnconfirmed(ctx context.Context, batchId string, report *CycleReport, cause error) {
	w.deps.Metrics.BatchCycle("swap_unconfirmed")

	zap.L().Error("Micro-batch swap outcome unknown, sessions held for manual reconciliation",
		zap.String("batch_id", batchId),
		zap.Int("sessions", report.Fetched),
		zap.Int64("total", report.Total),
		zap.Error(cause))

	w.alert(ctx, models.Alert{
		Kind:    models.AlertKindBatchSwapUnconfirmed,
		BatchId: batchId,
		Message: "consolidated swap did not confirm; sessions held in batching until checked against the relay",
		Details: map[string]string{
			"sessions":  fmt.Sprint(report.Fetched),
			"total":     decimal.NewFromInt(report.Total).String(),
			"total_usd": report.TotalUSD.StringFixed(2),
			"error":     cause.Error(),
		},
	})
}
