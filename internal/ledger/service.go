package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

// JournalMirror receives every applied credit transaction. Mirroring is best
// effort: the local credit log stays the source of truth.
type JournalMirror interface {
	Mirror(ctx context.Context, tx models.CreditTransaction) error
}

// JournalBalances reads a user's balance back from the mirror.
type JournalBalances interface {
	JournalBalance(ctx context.Context, userId, currency string) (int64, error)
}

// CreditRequest is one ledger mutation as seen by callers.
type CreditRequest struct {
	UserId         string                 `validate:"required,max=128"`
	Currency       string                 `validate:"required,alphanum,max=16"`
	Amount         int64                  `validate:"gt=0"`
	Type           models.TransactionType `validate:"required"`
	IdempotencyKey string                 `validate:"max=128"`
	ReferenceType  string                 `validate:"max=64"`
	ReferenceId    string                 `validate:"max=128"`
	HoldId         string                 `validate:"max=128"`
	Metadata       map[string]string
}

// Result is an applied or replayed ledger mutation.
type Result struct {
	Transaction *models.CreditTransaction
	// Replayed is set when the idempotency key was already used and the
	// earlier transaction is returned instead of applying a new one.
	Replayed bool
}

// Service is the Credit Ledger.
type Service struct {
	store    store.CreditLedgerStore
	journal  JournalMirror
	validate *validator.Validate
}

func NewService(ledgerStore store.CreditLedgerStore, journal JournalMirror) *Service {
	return &Service{
		store:    ledgerStore,
		journal:  journal,
		validate: validator.New(),
	}
}

// AddCredit increases the balance.
func (s *Service) AddCredit(ctx context.Context, req CreditRequest) (*Result, error) {
	return s.apply(ctx, req, s.store.AddCredit)
}

// DeductCredit decreases the balance; it fails without mutation when the
// available balance is below the amount.
func (s *Service) DeductCredit(ctx context.Context, req CreditRequest) (*Result, error) {
	return s.apply(ctx, req, s.store.DeductCredit)
}

func (s *Service) apply(ctx context.Context, req CreditRequest,
	op func(context.Context, store.CreditParams) (*models.CreditTransaction, error)) (*Result, error) {

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.replay(ctx, req); err != nil || existing != nil {
			return existing, err
		}
	}

	tx, err := op(ctx, store.CreditParams{
		UserId:         req.UserId,
		Currency:       req.Currency,
		Amount:         req.Amount,
		Type:           req.Type,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceType:  req.ReferenceType,
		ReferenceId:    req.ReferenceId,
		HoldId:         req.HoldId,
		Metadata:       req.Metadata,
	})
	if err != nil {
		// Lost a race against a concurrent call with the same key.
		if errors.Is(err, store.ErrDuplicateTransaction) && req.IdempotencyKey != "" {
			if existing, replayErr := s.replay(ctx, req); replayErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	zap.L().Info("Credit transaction recorded",
		zap.String("transaction_id", tx.Id),
		zap.String("user_id", tx.UserId),
		zap.String("currency", tx.Currency),
		zap.String("type", tx.Type.String()),
		zap.Int64("amount", tx.Amount))

	s.mirror(ctx, *tx)
	return &Result{Transaction: tx}, nil
}

func (s *Service) replay(ctx context.Context, req CreditRequest) (*Result, error) {
	existing, err := s.store.FindTransactionByIdempotencyKey(ctx, req.UserId, req.IdempotencyKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	if abs(existing.Amount) != req.Amount || existing.Type != req.Type || existing.Currency != req.Currency {
		zap.L().Warn("Idempotency key reused with different parameters",
			zap.String("user_id", req.UserId),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("existing_transaction_id", existing.Id),
			zap.Int64("existing_amount", existing.Amount),
			zap.Int64("requested_amount", req.Amount))
	}

	zap.L().Info("Replaying credit transaction",
		zap.String("user_id", req.UserId),
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("transaction_id", existing.Id))
	return &Result{Transaction: existing, Replayed: true}, nil
}

func (s *Service) mirror(ctx context.Context, tx models.CreditTransaction) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Mirror(ctx, tx); err != nil {
		zap.L().Warn("Failed to mirror credit transaction to journal",
			zap.String("transaction_id", tx.Id),
			zap.String("user_id", tx.UserId),
			zap.Error(err))
	}
}

func (s *Service) GetBalance(ctx context.Context, userId, currency string) (*models.CreditBalance, error) {
	return s.store.GetBalance(ctx, userId, currency)
}

func (s *Service) GetOrCreateBalance(ctx context.Context, userId, currency string) (*models.CreditBalance, error) {
	return s.store.GetOrCreateBalance(ctx, userId, currency)
}

func (s *Service) GetAllBalances(ctx context.Context, userId string) ([]models.CreditBalance, error) {
	return s.store.GetAllBalances(ctx, userId)
}

// SetHeldBalance is called by the hold-tracking collaborator.
func (s *Service) SetHeldBalance(ctx context.Context, userId, currency string, held int64) error {
	return s.store.SetHeldBalance(ctx, userId, currency, held)
}

func (s *Service) FindTransactionByIdempotencyKey(ctx context.Context, userId, key string) (*models.CreditTransaction, error) {
	return s.store.FindTransactionByIdempotencyKey(ctx, userId, key)
}

func (s *Service) GetTransactionHistory(ctx context.Context, userId, currency string, limit, offset int) ([]models.CreditTransaction, error) {
	return s.store.GetTransactionHistory(ctx, userId, currency, limit, offset)
}

func (s *Service) GetStats(ctx context.Context, currency string) (*models.LedgerStats, error) {
	return s.store.GetStats(ctx, currency)
}

func (s *Service) GetUserStats(ctx context.Context, userId, currency string) (*models.UserStats, error) {
	return s.store.GetUserStats(ctx, userId, currency)
}

// Reconcile checks the balance against the sum of the credit log.
func (s *Service) Reconcile(ctx context.Context, userId, currency string) error {
	return s.store.ReconcileBalance(ctx, userId, currency)
}

// ReconcileJournal compares the local balance with the mirrored journal balance.
func (s *Service) ReconcileJournal(ctx context.Context, journal JournalBalances, userId, currency string) error {
	local, err := s.store.GetBalance(ctx, userId, currency)
	if err != nil {
		return fmt.Errorf("failed to get local balance: %w", err)
	}

	mirrored, err := journal.JournalBalance(ctx, userId, currency)
	if err != nil {
		return fmt.Errorf("failed to get journal balance: %w", err)
	}

	if local.Balance != mirrored {
		zap.L().Error("Journal reconciliation failed",
			zap.String("user_id", userId),
			zap.String("currency", currency),
			zap.Int64("local_balance", local.Balance),
			zap.Int64("journal_balance", mirrored),
			zap.Int64("difference", local.Balance-mirrored))
		return fmt.Errorf("%w: journal mismatch local=%d journal=%d", store.ErrInternal, local.Balance, mirrored)
	}

	zap.L().Info("Journal reconciliation successful",
		zap.String("user_id", userId),
		zap.String("currency", currency),
		zap.Int64("balance", local.Balance))
	return nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
