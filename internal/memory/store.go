package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type balanceKey struct {
	userId   string
	currency string
}

type idempotencyKey struct {
	userId string
	key    string
}

type sessionRecord struct {
	session models.DepositSession
	prior   models.SessionStatus
}

// Store is an in-memory Repository. One mutex spans every check-and-mutate,
// so it gives the same atomicity as the SQLite backend within a process.
type Store struct {
	mu sync.RWMutex

	balances     map[balanceKey]*models.CreditBalance
	transactions []models.CreditTransaction
	idempotency  map[idempotencyKey]int

	sessions map[string]*sessionRecord
	history  []models.WithdrawalHistoryEntry
	treasury map[string]models.TreasuryConfig

	now func() time.Time
}

// Compile-time check: ensure Store implements store.Repository
var _ store.Repository = (*Store)(nil)

// NewStore creates an empty in-memory repository.
func NewStore() *Store {
	return &Store{
		balances:    make(map[balanceKey]*models.CreditBalance),
		idempotency: make(map[idempotencyKey]int),
		sessions:    make(map[string]*sessionRecord),
		treasury:    make(map[string]models.TreasuryConfig),
		now:         time.Now,
	}
}

// WithClock replaces the time source used for timestamps the caller does not supply.
func (m *Store) WithClock(now func() time.Time) *Store {
	m.now = now
	return m
}

func (m *Store) Close() {}

func (m *Store) GetBalance(ctx context.Context, userId, currency string) (*models.CreditBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if b, ok := m.balances[balanceKey{userId, currency}]; ok {
		cp := *b
		return &cp, nil
	}
	return &models.CreditBalance{UserId: userId, Currency: currency}, nil
}

func (m *Store) GetOrCreateBalance(ctx context.Context, userId, currency string) (*models.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *m.ensureBalance(userId, currency)
	return &cp, nil
}

func (m *Store) GetAllBalances(ctx context.Context, userId string) ([]models.CreditBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var balances []models.CreditBalance
	for key, b := range m.balances {
		if key.userId == userId {
			balances = append(balances, *b)
		}
	}
	sortBalances(balances)
	return balances, nil
}

func (m *Store) ensureBalance(userId, currency string) *models.CreditBalance {
	key := balanceKey{userId, currency}
	b, ok := m.balances[key]
	if !ok {
		now := m.now().UTC()
		b = &models.CreditBalance{UserId: userId, Currency: currency, CreatedAt: now, UpdatedAt: now}
		m.balances[key] = b
	}
	return b
}

func (m *Store) AddCredit(ctx context.Context, params store.CreditParams) (*models.CreditTransaction, error) {
	return m.applyCredit(params, false)
}

func (m *Store) DeductCredit(ctx context.Context, params store.CreditParams) (*models.CreditTransaction, error) {
	return m.applyCredit(params, true)
}

func (m *Store) applyCredit(params store.CreditParams, debit bool) (*models.CreditTransaction, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", store.ErrInvalidAmount, params.Amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idem := idempotencyKey{params.UserId, params.IdempotencyKey}
	if params.IdempotencyKey != "" {
		if _, exists := m.idempotency[idem]; exists {
			return nil, fmt.Errorf("%w: idempotency_key %s already used", store.ErrDuplicateTransaction, params.IdempotencyKey)
		}
	}

	current, exists := m.balances[balanceKey{params.UserId, params.Currency}]
	signed := params.Amount
	if debit {
		signed = -params.Amount
		var available, total, held int64
		if exists {
			available, total, held = current.Available(), current.Balance, current.HeldBalance
		}
		if available < params.Amount {
			return nil, fmt.Errorf("%w: available=%d requested=%d total=%d held=%d",
				store.ErrInsufficientCredit, available, params.Amount, total, held)
		}
	}

	now := m.now().UTC()
	balance := m.ensureBalance(params.UserId, params.Currency)
	balance.Balance += signed
	balance.UpdatedAt = now

	tx := models.CreditTransaction{
		Id:             uuid.New().String(),
		UserId:         params.UserId,
		Amount:         signed,
		Currency:       params.Currency,
		Type:           params.Type,
		IdempotencyKey: params.IdempotencyKey,
		ReferenceType:  params.ReferenceType,
		ReferenceId:    params.ReferenceId,
		HoldId:         params.HoldId,
		Metadata:       copyMetadata(params.Metadata),
		CreatedAt:      now,
	}
	m.transactions = append(m.transactions, tx)
	if params.IdempotencyKey != "" {
		m.idempotency[idem] = len(m.transactions) - 1
	}

	zap.L().Debug("Credit transaction applied",
		zap.String("transaction_id", tx.Id),
		zap.String("user_id", params.UserId),
		zap.Int64("amount", signed))
	return &tx, nil
}

func (m *Store) SetHeldBalance(ctx context.Context, userId, currency string, held int64) error {
	if held < 0 {
		return fmt.Errorf("%w: held balance cannot be negative", store.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	balance := m.ensureBalance(userId, currency)
	if held > balance.Balance {
		return fmt.Errorf("%w: user=%s currency=%s held=%d", store.ErrHoldExceedsBalance, userId, currency, held)
	}
	balance.HeldBalance = held
	balance.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Store) FindTransactionByIdempotencyKey(ctx context.Context, userId, key string) (*models.CreditTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.idempotency[idempotencyKey{userId, key}]
	if !ok || key == "" {
		return nil, store.ErrTransactionNotFound
	}
	tx := m.transactions[idx]
	return &tx, nil
}

// GetTransactionHistory returns newest first.
func (m *Store) GetTransactionHistory(ctx context.Context, userId, currency string, limit, offset int) ([]models.CreditTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.CreditTransaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		tx := m.transactions[i]
		if tx.UserId == userId && tx.Currency == currency {
			matched = append(matched, tx)
		}
	}
	return page(matched, limit, offset), nil
}

func (m *Store) GetStats(ctx context.Context, currency string) (*models.LedgerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.LedgerStats{Currency: currency}
	for _, tx := range m.transactions {
		if tx.Currency != currency {
			continue
		}
		stats.TransactionCount++
		stats.NetBalance += tx.Amount
		switch tx.Type {
		case models.TransactionTypeDeposit:
			stats.TotalDeposited += tx.Amount
		case models.TransactionTypeSpend:
			stats.TotalSpent += tx.Amount
		case models.TransactionTypeAdjustment:
			stats.TotalAdjusted += tx.Amount
		}
	}
	for key := range m.balances {
		if key.currency == currency {
			stats.UserCount++
		}
	}
	return stats, nil
}

func (m *Store) GetUserStats(ctx context.Context, userId, currency string) (*models.UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.UserStats{UserId: userId, Currency: currency}
	for _, tx := range m.transactions {
		if tx.UserId != userId || tx.Currency != currency {
			continue
		}
		stats.TransactionCount++
		switch tx.Type {
		case models.TransactionTypeDeposit:
			stats.TotalDeposited += tx.Amount
		case models.TransactionTypeSpend:
			stats.TotalSpent += tx.Amount
		case models.TransactionTypeAdjustment:
			stats.TotalAdjusted += tx.Amount
		}
	}
	if b, ok := m.balances[balanceKey{userId, currency}]; ok {
		stats.Balance = b.Balance
		stats.HeldBalance = b.HeldBalance
	}
	return stats, nil
}

func (m *Store) ReconcileBalance(ctx context.Context, userId, currency string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var calculated, current int64
	for _, tx := range m.transactions {
		if tx.UserId == userId && tx.Currency == currency {
			calculated += tx.Amount
		}
	}
	if b, ok := m.balances[balanceKey{userId, currency}]; ok {
		current = b.Balance
	}
	if current != calculated {
		zap.L().Error("Balance reconciliation failed",
			zap.String("user_id", userId),
			zap.String("currency", currency),
			zap.Int64("current_balance", current),
			zap.Int64("calculated_balance", calculated))
		return fmt.Errorf("%w: balance mismatch: current=%d, calculated=%d", store.ErrInternal, current, calculated)
	}
	return nil
}

func (m *Store) FindTreasuryForScope(ctx context.Context, scopeId string) (*models.TreasuryConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if cfg, ok := m.treasury[scopeId]; ok {
		return &cfg, nil
	}
	if cfg, ok := m.treasury[""]; ok {
		return &cfg, nil
	}
	return nil, fmt.Errorf("%w: scope %q", store.ErrTreasuryNotConfigured, scopeId)
}

func (m *Store) UpsertTreasury(ctx context.Context, scopeId, encryptedKey string, metadata map[string]string) (*models.TreasuryConfig, error) {
	if encryptedKey == "" {
		return nil, fmt.Errorf("%w: encrypted key is required", store.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	cfg, ok := m.treasury[scopeId]
	if !ok {
		cfg = models.TreasuryConfig{Id: uuid.New().String(), ScopeId: scopeId, CreatedAt: now}
	}
	cfg.EncryptedKey = encryptedKey
	cfg.Metadata = copyMetadata(metadata)
	cfg.UpdatedAt = now
	m.treasury[scopeId] = cfg
	return &cfg, nil
}
