package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"

	"go.uber.org/zap"
)

// GetBalance returns the current balance for user/currency. A missing row is a zero balance.
func (s *Service) GetBalance(ctx context.Context, userId, currency string) (*models.CreditBalance, error) {
	zap.L().Debug("Getting balance", zap.String("user_id", userId), zap.String("currency", currency))

	balance, err := scanBalance(s.db.QueryRowContext(ctx, queryGetBalance, userId, currency))
	if errors.Is(err, sql.ErrNoRows) {
		// No balance record means zero balance
		return &models.CreditBalance{UserId: userId, Currency: currency}, nil
	}
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("user_id", userId), zap.String("currency", currency), zap.Error(err))
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// GetOrCreateBalance returns the balance row, creating it at zero if absent.
func (s *Service) GetOrCreateBalance(ctx context.Context, userId, currency string) (*models.CreditBalance, error) {
	now := toUnix(s.now())
	if _, err := s.db.ExecContext(ctx, queryEnsureBalance, userId, currency, now, now); err != nil {
		return nil, fmt.Errorf("failed to create credit balance: %w", err)
	}
	balance, err := scanBalance(s.db.QueryRowContext(ctx, queryGetBalance, userId, currency))
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// GetAllBalances returns every balance row for a user
func (s *Service) GetAllBalances(ctx context.Context, userId string) ([]models.CreditBalance, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAllUserBalances, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to get all balances: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var balances []models.CreditBalance
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, *balance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}
	return balances, nil
}

// SetHeldBalance records the amount currently reserved by holds. The hold may
// never exceed the balance.
func (s *Service) SetHeldBalance(ctx context.Context, userId, currency string, held int64) error {
	if held < 0 {
		return fmt.Errorf("%w: held balance cannot be negative", store.ErrValidation)
	}
	now := toUnix(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, queryEnsureBalance, userId, currency, now, now); err != nil {
		return fmt.Errorf("failed to create credit balance: %w", err)
	}
	result, err := tx.ExecContext(ctx, querySetHeldBalance, held, now, userId, currency, held)
	if err != nil {
		return fmt.Errorf("failed to set held balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: user=%s currency=%s held=%d", store.ErrHoldExceedsBalance, userId, currency, held)
	}
	return tx.Commit()
}

// ReconcileBalance verifies that current balance matches sum of all transactions
func (s *Service) ReconcileBalance(ctx context.Context, userId, currency string) error {
	zap.L().Info("Reconciling balance", zap.String("user_id", userId), zap.String("currency", currency))

	balance, err := s.GetBalance(ctx, userId, currency)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	var calculated int64
	if err := s.db.QueryRowContext(ctx, queryReconcileBalance, userId, currency).Scan(&calculated); err != nil {
		return fmt.Errorf("failed to calculate balance from transactions: %w", err)
	}

	if balance.Balance != calculated {
		zap.L().Error("Balance reconciliation failed",
			zap.String("user_id", userId),
			zap.String("currency", currency),
			zap.Int64("current_balance", balance.Balance),
			zap.Int64("calculated_balance", calculated),
			zap.Int64("difference", balance.Balance-calculated))
		return fmt.Errorf("%w: balance mismatch: current=%d, calculated=%d", store.ErrInternal, balance.Balance, calculated)
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("user_id", userId),
		zap.String("currency", currency),
		zap.Int64("balance", balance.Balance))
	return nil
}

// GetStats aggregates the credit log for a currency.
func (s *Service) GetStats(ctx context.Context, currency string) (*models.LedgerStats, error) {
	stats := &models.LedgerStats{Currency: currency}
	err := s.db.QueryRowContext(ctx, queryCurrencyStats, currency).Scan(
		&stats.TransactionCount, &stats.TotalDeposited, &stats.TotalSpent, &stats.TotalAdjusted, &stats.NetBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, queryCurrencyUserCount, currency).Scan(&stats.UserCount); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	return stats, nil
}

// GetUserStats aggregates the credit log for one user and currency.
func (s *Service) GetUserStats(ctx context.Context, userId, currency string) (*models.UserStats, error) {
	stats := &models.UserStats{UserId: userId, Currency: currency}
	err := s.db.QueryRowContext(ctx, queryUserStats, userId, currency).Scan(
		&stats.TransactionCount, &stats.TotalDeposited, &stats.TotalSpent, &stats.TotalAdjusted)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user stats: %w", err)
	}

	balance, err := s.GetBalance(ctx, userId, currency)
	if err != nil {
		return nil, err
	}
	stats.Balance = balance.Balance
	stats.HeldBalance = balance.HeldBalance
	return stats, nil
}
