package database

import (
	"context"
	"fmt"
	"time"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"

	"go.uber.org/zap"
)

// FetchPendingBatch returns up to limit PendingBatch sessions, oldest first.
func (s *Service) FetchPendingBatch(ctx context.Context, limit int) ([]models.DepositSession, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, queryFetchPendingBatch, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending batch: %w", err)
	}
	return collectSessions(rows)
}

// ReserveBatch moves exactly ids from PendingBatch to Batching under batchId.
// Either every id is reserved or none is.
func (s *Service) ReserveBatch(ctx context.Context, ids []string, batchId string, now time.Time) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty batch", store.ErrValidation)
	}

	query := `UPDATE deposit_sessions SET status = 'batching', batch_id = ?, updated_at = ?
		WHERE status = 'pending_batch' AND id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+2)
	args = append(args, batchId, toUnix(now))
	for _, id := range ids {
		args = append(args, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to reserve batch: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected != int64(len(ids)) {
		zap.L().Warn("Batch reservation lost a race, rolling back",
			zap.String("batch_id", batchId),
			zap.Int("requested", len(ids)),
			zap.Int64("reserved", rowsAffected))
		return fmt.Errorf("%w: reserved %d of %d sessions", store.ErrConcurrentModification, rowsAffected, len(ids))
	}

	return tx.Commit()
}

// MarkBatched finalizes a reserved batch with the swap's transaction reference.
func (s *Service) MarkBatched(ctx context.Context, batchId, txRef string, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, queryMarkBatched, txRef, toUnix(now), batchId)
	if err != nil {
		return 0, fmt.Errorf("failed to mark batch: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(rowsAffected), nil
}

// ReleaseBatch returns a reserved batch to PendingBatch after a failed swap.
func (s *Service) ReleaseBatch(ctx context.Context, batchId string, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, queryReleaseBatch, toUnix(now), batchId)
	if err != nil {
		return 0, fmt.Errorf("failed to release batch: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(rowsAffected), nil
}
