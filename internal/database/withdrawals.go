package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordWithdrawal appends a history entry and advances withdrawn_amount in
// one transaction. The amount is capped at the session's remaining balance.
func (s *Service) RecordWithdrawal(ctx context.Context, params store.RecordWithdrawalParams) (*models.WithdrawalHistoryEntry, *models.DepositSession, error) {
	if params.Amount <= 0 {
		return nil, nil, fmt.Errorf("%w: got %d", store.ErrInvalidAmount, params.Amount)
	}
	now := params.Now
	if now.IsZero() {
		now = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var userId, status string
	var depositAmount, withdrawn int64
	var claimId sql.NullString
	err = tx.QueryRowContext(ctx, queryGetSessionForUpdate, params.SessionId).
		Scan(&userId, &status, &depositAmount, &withdrawn, &claimId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, params.SessionId)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read session: %w", err)
	}
	if status != models.SessionStatusProcessing.String() {
		return nil, nil, fmt.Errorf("%w: %s is %s", store.ErrSessionNotWithdrawable, params.SessionId, status)
	}
	if params.ClaimId == "" || claimId.String != params.ClaimId {
		return nil, nil, fmt.Errorf("%w: %s", store.ErrClaimLost, params.SessionId)
	}

	amount := params.Amount
	if remaining := depositAmount - withdrawn; amount > remaining {
		zap.L().Warn("Withdrawal amount exceeds remaining balance, capping",
			zap.String("session_id", params.SessionId),
			zap.Int64("amount", amount),
			zap.Int64("remaining", remaining))
		amount = remaining
	}
	if amount <= 0 {
		return nil, nil, fmt.Errorf("%w: %s", store.ErrAlreadyWithdrawn, params.SessionId)
	}

	cumulative := withdrawn + amount
	fully := cumulative == depositAmount
	next := models.SessionStatusCompleted
	if fully {
		next = models.SessionStatusWithdrawn
	}

	session, err := scanSession(tx.QueryRowContext(ctx, queryApplyWithdrawal,
		cumulative, next.String(), toUnix(now), params.SessionId, params.ClaimId, withdrawn))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: session %s", store.ErrConcurrentModification, params.SessionId)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update session: %w", err)
	}

	entry := &models.WithdrawalHistoryEntry{
		Id:                  uuid.New().String(),
		SessionId:           params.SessionId,
		UserId:              userId,
		Amount:              amount,
		Fee:                 params.Fee,
		TxRef:               params.TxRef,
		CumulativeWithdrawn: cumulative,
		Remaining:           depositAmount - cumulative,
		FullyWithdrawn:      fully,
		PercentageOfTotal:   params.PercentageOfTotal,
		CreatedAt:           now.UTC(),
	}

	var pct sql.NullFloat64
	if entry.PercentageOfTotal != nil {
		pct = sql.NullFloat64{Float64: *entry.PercentageOfTotal, Valid: true}
	}
	fullyInt := 0
	if fully {
		fullyInt = 1
	}
	_, err = tx.ExecContext(ctx, queryInsertWithdrawalHistory,
		entry.Id, entry.SessionId, entry.UserId, entry.Amount, entry.Fee, entry.TxRef,
		entry.CumulativeWithdrawn, entry.Remaining, fullyInt, pct, toUnix(now))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert withdrawal history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Withdrawal recorded",
		zap.String("session_id", params.SessionId),
		zap.String("tx_ref", params.TxRef),
		zap.Int64("amount", amount),
		zap.Int64("cumulative_withdrawn", cumulative),
		zap.Bool("fully_withdrawn", fully))

	return entry, session, nil
}

// RecordWithdrawalFailure increments the attempt counter and moves the session
// to PendingRetry, or to Failed once retries are exhausted.
func (s *Service) RecordWithdrawalFailure(ctx context.Context, params store.WithdrawalFailureParams) (*models.DepositSession, error) {
	now := params.Now
	if now.IsZero() {
		now = s.now()
	}
	permanent := 0
	if params.Permanent {
		permanent = 1
	}

	session, err := scanSession(s.db.QueryRowContext(ctx, queryRecordWithdrawalFailure,
		params.Error, permanent, params.MaxRetries, toUnix(now), params.SessionId, params.ClaimId))
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := s.GetSession(ctx, params.SessionId)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == models.SessionStatusProcessing {
			return nil, fmt.Errorf("%w: %s", store.ErrClaimLost, params.SessionId)
		}
		return nil, fmt.Errorf("%w: %s is not being processed", store.ErrSessionNotWithdrawable, params.SessionId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record withdrawal failure: %w", err)
	}

	zap.L().Warn("Withdrawal failure recorded",
		zap.String("session_id", session.Id),
		zap.Int("processing_attempts", session.ProcessingAttempts),
		zap.String("status", session.Status.String()))
	return session, nil
}

// GetWithdrawalHistory returns the history of a session, oldest first.
func (s *Service) GetWithdrawalHistory(ctx context.Context, sessionId string) ([]models.WithdrawalHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetWithdrawalHistory, sessionId)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal history: %w", err)
	}
	return collectHistory(rows)
}

// ListWithdrawals returns withdrawal history newest first; an empty userId lists all users.
func (s *Service) ListWithdrawals(ctx context.Context, userId string, limit, offset int) ([]models.WithdrawalHistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, queryListWithdrawals, userId, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return collectHistory(rows)
}

func collectHistory(rows *sql.Rows) ([]models.WithdrawalHistoryEntry, error) {
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var entries []models.WithdrawalHistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal history: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal history rows: %w", err)
	}
	return entries, nil
}
