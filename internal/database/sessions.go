package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateSession persists a new deposit session. The encrypted key is write-once.
func (s *Service) CreateSession(ctx context.Context, params store.CreateSessionParams) (*models.DepositSession, error) {
	if params.Id == "" {
		params.Id = uuid.New().String()
	}
	if params.CreatedAt.IsZero() {
		params.CreatedAt = s.now()
	}
	if params.EncryptedSigningKey == "" {
		return nil, fmt.Errorf("%w: encrypted signing key is required", store.ErrValidation)
	}
	if params.DepositAmount <= 0 {
		return nil, fmt.Errorf("%w: got %d", store.ErrInvalidAmount, params.DepositAmount)
	}

	created := toUnix(params.CreatedAt)
	session, err := scanSession(s.db.QueryRowContext(ctx, queryInsertSession,
		params.Id, params.UserId, params.WalletAddress, params.DepositType.String(), params.Currency,
		params.Status.String(), params.DetectedAmount, params.DepositAmount, params.CreditedAmount,
		params.EncryptedSigningKey, nullString(params.RelayTxRef), nullString(params.RelayAccountId),
		toUnix(params.WithdrawalAvailableAt), created, created))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: session %s already exists", store.ErrDuplicateTransaction, params.Id)
		}
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	zap.L().Info("Deposit session created",
		zap.String("session_id", session.Id),
		zap.String("user_id", session.UserId),
		zap.String("status", session.Status.String()),
		zap.Int64("deposit_amount", session.DepositAmount))
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*models.DepositSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, queryGetSession, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions matching the filter, newest first.
func (s *Service) ListSessions(ctx context.Context, filter store.SessionFilter) ([]models.DepositSession, error) {
	var where []string
	var args []any
	if filter.UserId != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserId)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, st.String())
		}
	}

	query := "SELECT " + sessionColumns + " FROM deposit_sessions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return collectSessions(rows)
}

// ClaimReadySessions leases up to params.Limit matured sessions in a single
// conditional update. Stale processing leases are reclaimed.
func (s *Service) ClaimReadySessions(ctx context.Context, params store.ClaimParams) ([]models.DepositSession, error) {
	if params.Limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, queryClaimReadySessions,
		toUnix(params.Now), leaseCutoff(params.Now, params.LeaseTimeout), params.Limit, uuid.New().String())
	if err != nil {
		return nil, fmt.Errorf("failed to claim sessions: %w", err)
	}
	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, err
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].WithdrawalAvailableAt.Before(sessions[j].WithdrawalAvailableAt)
	})

	if len(sessions) > 0 {
		zap.L().Debug("Claimed sessions", zap.Int("count", len(sessions)))
	}
	return sessions, nil
}

// ClaimSession leases a single session. Unless ignoreAvailability is set the
// privacy period must have elapsed.
func (s *Service) ClaimSession(ctx context.Context, id string, now time.Time, ignoreAvailability bool) (*models.DepositSession, error) {
	current, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkClaimable(current, now, ignoreAvailability); err != nil {
		return nil, err
	}

	session, err := scanSession(s.db.QueryRowContext(ctx, queryClaimSession,
		toUnix(now), uuid.New().String(), toUnix(now), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s changed while claiming", store.ErrConcurrentModification, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}
	return session, nil
}

// RenewClaim restamps claimed_at so the lease outlives the next relay call.
func (s *Service) RenewClaim(ctx context.Context, id, claimId string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, queryRenewClaim, toUnix(now), toUnix(now), id, claimId)
	if err != nil {
		return fmt.Errorf("failed to renew claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to renew claim: %w", err)
	}
	if n == 0 {
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", store.ErrClaimLost, id)
	}
	return nil
}

func checkClaimable(session *models.DepositSession, now time.Time, ignoreAvailability bool) error {
	switch {
	case session.Status == models.SessionStatusWithdrawn:
		return fmt.Errorf("%w: %s", store.ErrAlreadyWithdrawn, session.Id)
	case !session.Status.Withdrawable():
		return fmt.Errorf("%w: %s is %s", store.ErrSessionNotWithdrawable, session.Id, session.Status)
	case !ignoreAvailability && now.Before(session.WithdrawalAvailableAt):
		return fmt.Errorf("%w: %s available at %s", store.ErrPrivacyPeriodActive,
			session.Id, session.WithdrawalAvailableAt.Format(time.RFC3339))
	}
	return nil
}

// ReleaseSessions returns leased sessions to the status they had before the claim.
func (s *Service) ReleaseSessions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := toUnix(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, queryReleaseSession, now, id); err != nil {
			return fmt.Errorf("failed to release session %s: %w", id, err)
		}
	}
	return tx.Commit()
}
