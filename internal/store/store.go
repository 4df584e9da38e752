package store

import (
	"context"
	"time"

	"privacy-relay-settlement/internal/models"
)

// CreditParams describes one ledger mutation. Amount is always positive; the
// sign of the recorded transaction follows from AddCredit or DeductCredit.
type CreditParams struct {
	UserId         string
	Currency       string
	Amount         int64
	Type           models.TransactionType
	IdempotencyKey string
	ReferenceType  string
	ReferenceId    string
	HoldId         string
	Metadata       map[string]string
}

// CreateSessionParams contains the parameters for persisting a new deposit session.
type CreateSessionParams struct {
	Id                    string
	UserId                string
	WalletAddress         string
	DepositType           models.DepositType
	Currency              string
	Status                models.SessionStatus
	DetectedAmount        int64
	DepositAmount         int64
	CreditedAmount        int64
	EncryptedSigningKey   string
	RelayTxRef            string
	RelayAccountId        string
	WithdrawalAvailableAt time.Time
	CreatedAt             time.Time
}

// SessionFilter narrows ListSessions. Zero values match everything.
type SessionFilter struct {
	UserId   string
	Statuses []models.SessionStatus
	Limit    int
	Offset   int
}

// ClaimParams controls a claim-and-lease pass over matured sessions.
type ClaimParams struct {
	Now          time.Time
	Limit        int
	LeaseTimeout time.Duration
}

// RecordWithdrawalParams describes a successful relay payout.
type RecordWithdrawalParams struct {
	SessionId         string
	ClaimId           string
	Amount            int64
	Fee               int64
	TxRef             string
	PercentageOfTotal *float64
	Now               time.Time
}

// WithdrawalFailureParams describes a failed relay payout.
type WithdrawalFailureParams struct {
	SessionId  string
	ClaimId    string
	Error      string
	MaxRetries int
	// Permanent marks the session Failed regardless of the attempt count.
	Permanent bool
	Now       time.Time
}

// CreditLedgerStore holds balances and the immutable credit log.
type CreditLedgerStore interface {
	GetBalance(ctx context.Context, userId, currency string) (*models.CreditBalance, error)
	GetOrCreateBalance(ctx context.Context, userId, currency string) (*models.CreditBalance, error)
	GetAllBalances(ctx context.Context, userId string) ([]models.CreditBalance, error)
	AddCredit(ctx context.Context, params CreditParams) (*models.CreditTransaction, error)
	DeductCredit(ctx context.Context, params CreditParams) (*models.CreditTransaction, error)
	SetHeldBalance(ctx context.Context, userId, currency string, held int64) error
	FindTransactionByIdempotencyKey(ctx context.Context, userId, key string) (*models.CreditTransaction, error)
	GetTransactionHistory(ctx context.Context, userId, currency string, limit, offset int) ([]models.CreditTransaction, error)
	GetStats(ctx context.Context, currency string) (*models.LedgerStats, error)
	GetUserStats(ctx context.Context, userId, currency string) (*models.UserStats, error)
	ReconcileBalance(ctx context.Context, userId, currency string) error
}

// SessionStore owns deposit sessions and their withdrawal history.
type SessionStore interface {
	// --- Sessions ---
	CreateSession(ctx context.Context, params CreateSessionParams) (*models.DepositSession, error)
	GetSession(ctx context.Context, id string) (*models.DepositSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]models.DepositSession, error)

	// --- Withdrawal claims ---
	ClaimReadySessions(ctx context.Context, params ClaimParams) ([]models.DepositSession, error)
	ClaimSession(ctx context.Context, id string, now time.Time, ignoreAvailability bool) (*models.DepositSession, error)
	// RenewClaim restamps the lease of a Processing session, provided claimId
	// still holds it. It returns ErrClaimLost otherwise.
	RenewClaim(ctx context.Context, id, claimId string, now time.Time) error
	ReleaseSessions(ctx context.Context, ids []string) error
	RecordWithdrawal(ctx context.Context, params RecordWithdrawalParams) (*models.WithdrawalHistoryEntry, *models.DepositSession, error)
	RecordWithdrawalFailure(ctx context.Context, params WithdrawalFailureParams) (*models.DepositSession, error)
	GetWithdrawalHistory(ctx context.Context, sessionId string) ([]models.WithdrawalHistoryEntry, error)
	ListWithdrawals(ctx context.Context, userId string, limit, offset int) ([]models.WithdrawalHistoryEntry, error)

	// --- Micro-batches ---
	FetchPendingBatch(ctx context.Context, limit int) ([]models.DepositSession, error)
	ReserveBatch(ctx context.Context, ids []string, batchId string, now time.Time) error
	MarkBatched(ctx context.Context, batchId, txRef string, now time.Time) (int, error)
	ReleaseBatch(ctx context.Context, batchId string, now time.Time) (int, error)
}

// TreasuryStore holds the operator's encrypted treasury keys.
type TreasuryStore interface {
	FindTreasuryForScope(ctx context.Context, scopeId string) (*models.TreasuryConfig, error)
	UpsertTreasury(ctx context.Context, scopeId, encryptedKey string, metadata map[string]string) (*models.TreasuryConfig, error)
}

// Repository is the contract that every backend (SQLite, in-memory) must satisfy.
type Repository interface {
	CreditLedgerStore
	SessionStore
	TreasuryStore

	// --- Lifecycle ---
	Close()
}
