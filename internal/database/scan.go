package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"privacy-relay-settlement/internal/models"

	"github.com/mattn/go-sqlite3"
)

// Timestamps are stored as UTC unix nanoseconds so range predicates compare integers.
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// leaseCutoff returns the claimed_at bound below which a processing lease is stale.
func leaseCutoff(now time.Time, lease time.Duration) int64 {
	if lease <= 0 {
		return math.MinInt64
	}
	return toUnix(now.Add(-lease))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeMetadata(ns sql.NullString) (map[string]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return m, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBalance(row scanner) (*models.CreditBalance, error) {
	var b models.CreditBalance
	var createdAt, updatedAt int64
	if err := row.Scan(&b.UserId, &b.Currency, &b.Balance, &b.HeldBalance, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.CreatedAt = fromUnix(createdAt)
	b.UpdatedAt = fromUnix(updatedAt)
	return &b, nil
}

func scanTransaction(row scanner) (*models.CreditTransaction, error) {
	var tx models.CreditTransaction
	var txType string
	var idemKey, refType, refId, holdId, metadata sql.NullString
	var createdAt int64
	err := row.Scan(&tx.Id, &tx.UserId, &tx.Amount, &tx.Currency, &txType,
		&idemKey, &refType, &refId, &holdId, &metadata, &createdAt)
	if err != nil {
		return nil, err
	}

	tx.Type, err = models.ParseTransactionType(txType)
	if err != nil {
		return nil, err
	}
	tx.IdempotencyKey = idemKey.String
	tx.ReferenceType = refType.String
	tx.ReferenceId = refId.String
	tx.HoldId = holdId.String
	tx.CreatedAt = fromUnix(createdAt)
	tx.Metadata, err = decodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func scanSession(row scanner) (*models.DepositSession, error) {
	var s models.DepositSession
	var depositType, status string
	var relayTxRef, relayAccountId, lastError, batchId, batchTxRef, claimId sql.NullString
	var claimedAt sql.NullInt64
	var availableAt, createdAt, updatedAt int64

	err := row.Scan(&s.Id, &s.UserId, &s.WalletAddress, &depositType, &s.Currency, &status,
		&s.DetectedAmount, &s.DepositAmount, &s.CreditedAmount, &s.EncryptedSigningKey,
		&relayTxRef, &relayAccountId, &availableAt, &s.WithdrawnAmount,
		&s.ProcessingAttempts, &lastError, &batchId, &batchTxRef, &claimedAt, &claimId, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.DepositType, err = models.ParseDepositType(depositType)
	if err != nil {
		return nil, err
	}
	s.Status, err = models.ParseSessionStatus(status)
	if err != nil {
		return nil, err
	}
	s.RelayTxRef = relayTxRef.String
	s.RelayAccountId = relayAccountId.String
	s.LastError = lastError.String
	s.BatchId = batchId.String
	s.BatchTxRef = batchTxRef.String
	s.ClaimId = claimId.String
	if claimedAt.Valid {
		t := fromUnix(claimedAt.Int64)
		s.ClaimedAt = &t
	}
	s.WithdrawalAvailableAt = fromUnix(availableAt)
	s.CreatedAt = fromUnix(createdAt)
	s.UpdatedAt = fromUnix(updatedAt)
	return &s, nil
}

func scanHistoryEntry(row scanner) (*models.WithdrawalHistoryEntry, error) {
	var e models.WithdrawalHistoryEntry
	var fully int64
	var pct sql.NullFloat64
	var createdAt int64
	err := row.Scan(&e.Id, &e.SessionId, &e.UserId, &e.Amount, &e.Fee, &e.TxRef,
		&e.CumulativeWithdrawn, &e.Remaining, &fully, &pct, &createdAt)
	if err != nil {
		return nil, err
	}
	e.FullyWithdrawn = fully != 0
	if pct.Valid {
		v := pct.Float64
		e.PercentageOfTotal = &v
	}
	e.CreatedAt = fromUnix(createdAt)
	return &e, nil
}

// collectSessions drains rows into sessions and closes them.
func collectSessions(rows *sql.Rows) ([]models.DepositSession, error) {
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var sessions []models.DepositSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}
