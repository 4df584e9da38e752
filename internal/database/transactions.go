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

// AddCredit atomically increments the balance and records the transaction.
func (s *Service) AddCredit(ctx context.Context, params store.CreditParams) (*models.CreditTransaction, error) {
	return s.applyCredit(ctx, params, false)
}

// DeductCredit atomically decrements the balance if enough is available and
// records the transaction. A failed deduction leaves the balance untouched.
func (s *Service) DeductCredit(ctx context.Context, params store.CreditParams) (*models.CreditTransaction, error) {
	return s.applyCredit(ctx, params, true)
}

func (s *Service) applyCredit(ctx context.Context, params store.CreditParams, debit bool) (*models.CreditTransaction, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", store.ErrInvalidAmount, params.Amount)
	}

	zap.L().Info("Applying credit transaction",
		zap.String("user_id", params.UserId),
		zap.String("currency", params.Currency),
		zap.String("type", params.Type.String()),
		zap.Int64("amount", params.Amount),
		zap.Bool("debit", debit))

	metadata, err := encodeMetadata(params.Metadata)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	// Start database transaction for atomicity
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, queryEnsureBalance, params.UserId, params.Currency, toUnix(now), toUnix(now)); err != nil {
		return nil, fmt.Errorf("failed to create credit balance: %w", err)
	}

	signed := params.Amount
	if debit {
		signed = -params.Amount
		result, err := tx.ExecContext(ctx, queryDecrementBalance,
			params.Amount, toUnix(now), params.UserId, params.Currency, params.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement balance: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil, s.insufficientCredit(ctx, tx, params)
		}
	} else {
		if _, err := tx.ExecContext(ctx, queryIncrementBalance,
			params.Amount, toUnix(now), params.UserId, params.Currency); err != nil {
			return nil, fmt.Errorf("failed to increment balance: %w", err)
		}
	}

	transaction := &models.CreditTransaction{
		Id:             uuid.New().String(),
		UserId:         params.UserId,
		Amount:         signed,
		Currency:       params.Currency,
		Type:           params.Type,
		IdempotencyKey: params.IdempotencyKey,
		ReferenceType:  params.ReferenceType,
		ReferenceId:    params.ReferenceId,
		HoldId:         params.HoldId,
		Metadata:       params.Metadata,
		CreatedAt:      now,
	}

	_, err = tx.ExecContext(ctx, queryInsertTransaction,
		transaction.Id, transaction.UserId, transaction.Amount, transaction.Currency, transaction.Type.String(),
		nullString(params.IdempotencyKey), nullString(params.ReferenceType), nullString(params.ReferenceId),
		nullString(params.HoldId), metadata, toUnix(now))
	if err != nil {
		if isUniqueViolation(err) {
			zap.L().Warn("Duplicate idempotency key detected, skipping",
				zap.String("user_id", params.UserId),
				zap.String("idempotency_key", params.IdempotencyKey))
			return nil, fmt.Errorf("%w: idempotency_key %s already used", store.ErrDuplicateTransaction, params.IdempotencyKey)
		}
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Credit transaction applied",
		zap.String("transaction_id", transaction.Id),
		zap.String("user_id", params.UserId),
		zap.String("currency", params.Currency),
		zap.Int64("amount", signed))

	return transaction, nil
}

// insufficientCredit reads the balance inside the failed transaction so the
// error carries the figures an operator needs.
func (s *Service) insufficientCredit(ctx context.Context, tx *sql.Tx, params store.CreditParams) error {
	balance, err := scanBalance(tx.QueryRowContext(ctx, queryGetBalance, params.UserId, params.Currency))
	if err != nil {
		return fmt.Errorf("%w: requested=%d (balance unavailable: %v)", store.ErrInsufficientCredit, params.Amount, err)
	}
	zap.L().Warn("Insufficient credit",
		zap.String("user_id", params.UserId),
		zap.String("currency", params.Currency),
		zap.Int64("available", balance.Available()),
		zap.Int64("requested", params.Amount))
	return fmt.Errorf("%w: available=%d requested=%d total=%d held=%d",
		store.ErrInsufficientCredit, balance.Available(), params.Amount, balance.Balance, balance.HeldBalance)
}

// FindTransactionByIdempotencyKey returns the transaction recorded under key for the user.
func (s *Service) FindTransactionByIdempotencyKey(ctx context.Context, userId, key string) (*models.CreditTransaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, queryFindTransactionByIdempotencyKey, userId, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by idempotency key: %w", err)
	}
	return tx, nil
}

// GetTransactionHistory returns paginated transaction history, newest first
func (s *Service) GetTransactionHistory(ctx context.Context, userId, currency string, limit, offset int) ([]models.CreditTransaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("user_id", userId),
		zap.String("currency", currency),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, userId, currency, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var transactions []models.CreditTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *tx)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, nil
}
