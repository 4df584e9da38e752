package withdrawal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

// ForceOptions authorizes a withdrawal before the privacy period ends.
type ForceOptions struct {
	Confirm  bool
	Operator string
	Reason   string
}

// ForceWithdraw withdraws the full remaining balance of one session now,
// bypassing the privacy gate. Confirm must be set.
func (w *Worker) ForceWithdraw(ctx context.Context, sessionId string, opts ForceOptions) (*models.WithdrawalResult, error) {
	if !opts.Confirm {
		return nil, fmt.Errorf("%w: session %s", store.ErrForceNotConfirmed, sessionId)
	}

	session, err := w.deps.Sessions.GetSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	now := w.now().UTC()
	zap.L().Warn("Forced withdrawal requested",
		zap.Bool("audit", true),
		zap.String("session_id", sessionId),
		zap.String("user_id", session.UserId),
		zap.String("operator", opts.Operator),
		zap.String("reason", opts.Reason),
		zap.Bool("privacy_period_active", now.Before(session.WithdrawalAvailableAt)),
		zap.Time("withdrawal_available_at", session.WithdrawalAvailableAt))

	return w.withdrawOne(ctx, sessionId, true)
}

// WithdrawForUser withdraws one session on behalf of its owner. The privacy
// period must have elapsed.
func (w *Worker) WithdrawForUser(ctx context.Context, userId, sessionId string) (*models.WithdrawalResult, error) {
	session, err := w.deps.Sessions.GetSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.UserId != userId {
		return nil, fmt.Errorf("%w: session %s", store.ErrOwnershipMismatch, sessionId)
	}
	return w.withdrawOne(ctx, sessionId, false)
}

func (w *Worker) withdrawOne(ctx context.Context, sessionId string, ignoreAvailability bool) (*models.WithdrawalResult, error) {
	cfg := w.loadSettings(ctx)

	claimed, err := w.deps.Sessions.ClaimSession(ctx, sessionId, w.now().UTC(), ignoreAvailability)
	if err != nil {
		return nil, err
	}

	result := w.execute(ctx, plan{session: *claimed, amount: claimed.Remaining()}, cfg)
	if result.Error != "" {
		return &result, fmt.Errorf("withdrawal of session %s failed: %s", sessionId, result.Error)
	}
	return &result, nil
}

// ForceProcess runs one cycle on demand over at most limit ready sessions,
// without the percentage throttle. The privacy gate still applies.
func (w *Worker) ForceProcess(ctx context.Context, limit int) (*CycleReport, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", store.ErrValidation)
	}
	cfg := w.loadSettings(ctx)
	cfg.batchSize = limit
	cfg.enforceLeaseFloor()

	zap.L().Warn("Force processing withdrawals", zap.Bool("audit", true), zap.Int("limit", limit))
	return w.runCycle(ctx, cfg, false)
}
