package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"

	"github.com/google/uuid"
)

func (m *Store) CreateSession(ctx context.Context, params store.CreateSessionParams) (*models.DepositSession, error) {
	if params.EncryptedSigningKey == "" {
		return nil, fmt.Errorf("%w: encrypted signing key is required", store.ErrValidation)
	}
	if params.DepositAmount <= 0 {
		return nil, fmt.Errorf("%w: got %d", store.ErrInvalidAmount, params.DepositAmount)
	}
	if params.Id == "" {
		params.Id = uuid.New().String()
	}
	if params.CreatedAt.IsZero() {
		params.CreatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[params.Id]; exists {
		return nil, fmt.Errorf("%w: session %s already exists", store.ErrDuplicateTransaction, params.Id)
	}

	created := params.CreatedAt.UTC()
	session := models.DepositSession{
		Id:                    params.Id,
		UserId:                params.UserId,
		WalletAddress:         params.WalletAddress,
		DepositType:           params.DepositType,
		Currency:              params.Currency,
		Status:                params.Status,
		DetectedAmount:        params.DetectedAmount,
		DepositAmount:         params.DepositAmount,
		CreditedAmount:        params.CreditedAmount,
		EncryptedSigningKey:   params.EncryptedSigningKey,
		RelayTxRef:            params.RelayTxRef,
		RelayAccountId:        params.RelayAccountId,
		WithdrawalAvailableAt: params.WithdrawalAvailableAt.UTC(),
		CreatedAt:             created,
		UpdatedAt:             created,
	}
	m.sessions[session.Id] = &sessionRecord{session: session}
	return cloneSession(session), nil
}

func (m *Store) GetSession(ctx context.Context, id string) (*models.DepositSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	return cloneSession(rec.session), nil
}

// ListSessions returns sessions matching the filter, newest first.
func (m *Store) ListSessions(ctx context.Context, filter store.SessionFilter) ([]models.DepositSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []models.DepositSession
	for _, rec := range m.sessions {
		if filter.UserId != "" && rec.session.UserId != filter.UserId {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, rec.session.Status) {
			continue
		}
		sessions = append(sessions, *cloneSession(rec.session))
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].Id < sessions[j].Id
	})
	return page(sessions, filter.Limit, filter.Offset), nil
}

func (m *Store) ClaimReadySessions(ctx context.Context, params store.ClaimParams) ([]models.DepositSession, error) {
	if params.Limit <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var eligible []*sessionRecord
	for _, rec := range m.sessions {
		if claimEligible(rec.session, params.Now, params.LeaseTimeout) {
			eligible = append(eligible, rec)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i].session, eligible[j].session
		if !a.WithdrawalAvailableAt.Equal(b.WithdrawalAvailableAt) {
			return a.WithdrawalAvailableAt.Before(b.WithdrawalAvailableAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if len(eligible) > params.Limit {
		eligible = eligible[:params.Limit]
	}

	claimId := uuid.New().String()
	claimed := make([]models.DepositSession, 0, len(eligible))
	for _, rec := range eligible {
		lease(rec, params.Now, claimId)
		claimed = append(claimed, *cloneSession(rec.session))
	}
	return claimed, nil
}

func claimEligible(s models.DepositSession, now time.Time, leaseTimeout time.Duration) bool {
	switch s.Status {
	case models.SessionStatusCompleted, models.SessionStatusPendingRetry:
		return !now.Before(s.WithdrawalAvailableAt)
	case models.SessionStatusProcessing:
		return leaseTimeout > 0 && s.ClaimedAt != nil && !s.ClaimedAt.After(now.Add(-leaseTimeout))
	default:
		return false
	}
}

func lease(rec *sessionRecord, now time.Time, claimId string) {
	if rec.session.Status != models.SessionStatusProcessing {
		rec.prior = rec.session.Status
	}
	claimedAt := now.UTC()
	rec.session.Status = models.SessionStatusProcessing
	rec.session.ClaimedAt = &claimedAt
	rec.session.ClaimId = claimId
	rec.session.UpdatedAt = claimedAt
}

// holdsClaim reports whether claimId is the live claim on a Processing session.
func holdsClaim(s models.DepositSession, claimId string) bool {
	return s.Status == models.SessionStatusProcessing && claimId != "" && s.ClaimId == claimId
}

// settle clears the lease once a claim has been resolved.
func settle(rec *sessionRecord) {
	rec.session.ClaimedAt = nil
	rec.session.ClaimId = ""
	rec.prior = 0
}

func (m *Store) ClaimSession(ctx context.Context, id string, now time.Time, ignoreAvailability bool) (*models.DepositSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	s := rec.session
	switch {
	case s.Status == models.SessionStatusWithdrawn:
		return nil, fmt.Errorf("%w: %s", store.ErrAlreadyWithdrawn, id)
	case !s.Status.Withdrawable():
		return nil, fmt.Errorf("%w: %s is %s", store.ErrSessionNotWithdrawable, id, s.Status)
	case !ignoreAvailability && now.Before(s.WithdrawalAvailableAt):
		return nil, fmt.Errorf("%w: %s available at %s", store.ErrPrivacyPeriodActive,
			id, s.WithdrawalAvailableAt.Format(time.RFC3339))
	}

	lease(rec, now, uuid.New().String())
	return cloneSession(rec.session), nil
}

func (m *Store) RenewClaim(ctx context.Context, id, claimId string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	if !holdsClaim(rec.session, claimId) {
		return fmt.Errorf("%w: %s", store.ErrClaimLost, id)
	}
	claimedAt := now.UTC()
	rec.session.ClaimedAt = &claimedAt
	rec.session.UpdatedAt = claimedAt
	return nil
}

func (m *Store) ReleaseSessions(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	for _, id := range ids {
		rec, ok := m.sessions[id]
		if !ok || rec.session.Status != models.SessionStatusProcessing {
			continue
		}
		prior := rec.prior
		if prior == 0 {
			prior = models.SessionStatusCompleted
		}
		rec.session.Status = prior
		rec.session.UpdatedAt = now
		settle(rec)
	}
	return nil
}

func (m *Store) RecordWithdrawal(ctx context.Context, params store.RecordWithdrawalParams) (*models.WithdrawalHistoryEntry, *models.DepositSession, error) {
	if params.Amount <= 0 {
		return nil, nil, fmt.Errorf("%w: got %d", store.ErrInvalidAmount, params.Amount)
	}
	now := params.Now
	if now.IsZero() {
		now = m.now()
	}
	now = now.UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[params.SessionId]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, params.SessionId)
	}
	if rec.session.Status != models.SessionStatusProcessing {
		return nil, nil, fmt.Errorf("%w: %s is %s", store.ErrSessionNotWithdrawable, params.SessionId, rec.session.Status)
	}
	if !holdsClaim(rec.session, params.ClaimId) {
		return nil, nil, fmt.Errorf("%w: %s", store.ErrClaimLost, params.SessionId)
	}

	amount := params.Amount
	if remaining := rec.session.Remaining(); amount > remaining {
		amount = remaining
	}
	if amount <= 0 {
		return nil, nil, fmt.Errorf("%w: %s", store.ErrAlreadyWithdrawn, params.SessionId)
	}

	cumulative := rec.session.WithdrawnAmount + amount
	fully := cumulative == rec.session.DepositAmount

	rec.session.WithdrawnAmount = cumulative
	rec.session.Status = models.SessionStatusCompleted
	if fully {
		rec.session.Status = models.SessionStatusWithdrawn
	}
	rec.session.LastError = ""
	rec.session.UpdatedAt = now
	settle(rec)

	entry := models.WithdrawalHistoryEntry{
		Id:                  uuid.New().String(),
		SessionId:           params.SessionId,
		UserId:              rec.session.UserId,
		Amount:              amount,
		Fee:                 params.Fee,
		TxRef:               params.TxRef,
		CumulativeWithdrawn: cumulative,
		Remaining:           rec.session.DepositAmount - cumulative,
		FullyWithdrawn:      fully,
		PercentageOfTotal:   params.PercentageOfTotal,
		CreatedAt:           now,
	}
	m.history = append(m.history, entry)
	return &entry, cloneSession(rec.session), nil
}

func (m *Store) RecordWithdrawalFailure(ctx context.Context, params store.WithdrawalFailureParams) (*models.DepositSession, error) {
	now := params.Now
	if now.IsZero() {
		now = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[params.SessionId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, params.SessionId)
	}
	if rec.session.Status != models.SessionStatusProcessing {
		return nil, fmt.Errorf("%w: %s is not being processed", store.ErrSessionNotWithdrawable, params.SessionId)
	}
	if !holdsClaim(rec.session, params.ClaimId) {
		return nil, fmt.Errorf("%w: %s", store.ErrClaimLost, params.SessionId)
	}

	rec.session.ProcessingAttempts++
	rec.session.LastError = params.Error
	rec.session.Status = models.SessionStatusPendingRetry
	if params.Permanent || rec.session.ProcessingAttempts >= params.MaxRetries {
		rec.session.Status = models.SessionStatusFailed
	}
	rec.session.UpdatedAt = now.UTC()
	settle(rec)
	return cloneSession(rec.session), nil
}

func (m *Store) GetWithdrawalHistory(ctx context.Context, sessionId string) ([]models.WithdrawalHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []models.WithdrawalHistoryEntry
	for _, e := range m.history {
		if e.SessionId == sessionId {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (m *Store) ListWithdrawals(ctx context.Context, userId string, limit, offset int) ([]models.WithdrawalHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []models.WithdrawalHistoryEntry
	for i := len(m.history) - 1; i >= 0; i-- {
		if userId == "" || m.history[i].UserId == userId {
			entries = append(entries, m.history[i])
		}
	}
	return page(entries, limit, offset), nil
}

func (m *Store) FetchPendingBatch(ctx context.Context, limit int) ([]models.DepositSession, error) {
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []models.DepositSession
	for _, rec := range m.sessions {
		if rec.session.Status == models.SessionStatusPendingBatch {
			pending = append(pending, *cloneSession(rec.session))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].Id < pending[j].Id
	})
	return page(pending, limit, 0), nil
}

func (m *Store) ReserveBatch(ctx context.Context, ids []string, batchId string, now time.Time) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty batch", store.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		rec, ok := m.sessions[id]
		if !ok || rec.session.Status != models.SessionStatusPendingBatch {
			return fmt.Errorf("%w: session %s is no longer pending batch", store.ErrConcurrentModification, id)
		}
	}
	for _, id := range ids {
		rec := m.sessions[id]
		rec.session.Status = models.SessionStatusBatching
		rec.session.BatchId = batchId
		rec.session.UpdatedAt = now.UTC()
	}
	return nil
}

func (m *Store) MarkBatched(ctx context.Context, batchId, txRef string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, rec := range m.sessions {
		if rec.session.BatchId == batchId && rec.session.Status == models.SessionStatusBatching {
			rec.session.Status = models.SessionStatusBatched
			rec.session.BatchTxRef = txRef
			rec.session.UpdatedAt = now.UTC()
			n++
		}
	}
	return n, nil
}

func (m *Store) ReleaseBatch(ctx context.Context, batchId string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, rec := range m.sessions {
		if rec.session.BatchId == batchId && rec.session.Status == models.SessionStatusBatching {
			rec.session.Status = models.SessionStatusPendingBatch
			rec.session.BatchId = ""
			rec.session.UpdatedAt = now.UTC()
			n++
		}
	}
	return n, nil
}

func hasStatus(statuses []models.SessionStatus, s models.SessionStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func cloneSession(s models.DepositSession) *models.DepositSession {
	if s.ClaimedAt != nil {
		t := *s.ClaimedAt
		s.ClaimedAt = &t
	}
	return &s
}
