package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

// claimOne leases a session and returns its claim id.
func claimOne(t *testing.T, s *Service, id string) string {
	t.Helper()
	session, err := s.ClaimSession(context.Background(), id, testEpoch, true)
	if err != nil {
		t.Fatalf("ClaimSession(%s) failed: %v", id, err)
	}
	if session.ClaimId == "" {
		t.Fatalf("ClaimSession(%s) returned no claim id", id)
	}
	return session.ClaimId
}

func TestRecordWithdrawal_PartialThenFull(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "s1", models.SessionStatusCompleted, 1000, testEpoch)

	claimId := claimOne(t, s, "s1")
	pct := 40.0
	entry, session, err := s.RecordWithdrawal(ctx, store.RecordWithdrawalParams{
		SessionId: "s1", ClaimId: claimId, Amount: 400, TxRef: "tx-1", PercentageOfTotal: &pct, Now: testEpoch,
	})
	if err != nil {
		t.Fatalf("RecordWithdrawal failed: %v", err)
	}
	if entry.CumulativeWithdrawn != 400 || entry.Remaining != 600 || entry.FullyWithdrawn {
		t.Errorf("Unexpected partial entry: %+v", entry)
	}
	if session.Status != models.SessionStatusCompleted || session.WithdrawnAmount != 400 {
		t.Errorf("Expected completed with 400 withdrawn, got %s/%d", session.Status, session.WithdrawnAmount)
	}

	// An oversized request is capped at the remaining balance.
	claimId = claimOne(t, s, "s1")
	entry, session, err = s.RecordWithdrawal(ctx, store.RecordWithdrawalParams{
		SessionId: "s1", ClaimId: claimId, Amount: 5000, TxRef: "tx-2", Now: testEpoch,
	})
	if err != nil {
		t.Fatalf("RecordWithdrawal failed: %v", err)
	}
	if entry.Amount != 600 || !entry.FullyWithdrawn || entry.Remaining != 0 {
		t.Errorf("Unexpected final entry: %+v", entry)
	}
	if session.Status != models.SessionStatusWithdrawn || session.WithdrawnAmount != 1000 || session.ClaimId != "" {
		t.Errorf("Expected withdrawn with 1000, got %s/%d", session.Status, session.WithdrawnAmount)
	}

	history, err := s.GetWithdrawalHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("GetWithdrawalHistory failed: %v", err)
	}
	if len(history) != 2 || history[0].TxRef != "tx-1" || *history[0].PercentageOfTotal != 40 {
		t.Errorf("Unexpected history: %+v", history)
	}

	if _, err := s.ClaimSession(ctx, "s1", testEpoch, true); !errors.Is(err, store.ErrAlreadyWithdrawn) {
		t.Errorf("Expected ErrAlreadyWithdrawn, got %v", err)
	}
}

func TestRecordWithdrawal_RequiresClaim(t *testing.T) {
	s := setupTestDB(t)
	createTestSession(t, s, "s1", models.SessionStatusCompleted, 1000, testEpoch)

	_, _, err := s.RecordWithdrawal(context.Background(), store.RecordWithdrawalParams{SessionId: "s1", Amount: 10, TxRef: "tx"})
	if !errors.Is(err, store.ErrSessionNotWithdrawable) {
		t.Errorf("Expected ErrSessionNotWithdrawable, got %v", err)
	}
}

func TestRecordWithdrawal_RejectsLostClaim(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "s1", models.SessionStatusCompleted, 1000, testEpoch.Add(-time.Hour))

	params := store.ClaimParams{Now: testEpoch, Limit: 1, LeaseTimeout: 10 * time.Minute}
	first, err := s.ClaimReadySessions(ctx, params)
	if err != nil || len(first) != 1 {
		t.Fatalf("ClaimReadySessions failed: %v (%d)", err, len(first))
	}
	params.Now = testEpoch.Add(11 * time.Minute)
	second, err := s.ClaimReadySessions(ctx, params)
	if err != nil || len(second) != 1 {
		t.Fatalf("Stale lease not reclaimed: %v (%d)", err, len(second))
	}
	if second[0].ClaimId == first[0].ClaimId {
		t.Fatal("Takeover must issue a new claim id")
	}

	_, _, err = s.RecordWithdrawal(ctx, store.RecordWithdrawalParams{
		SessionId: "s1", ClaimId: first[0].ClaimId, Amount: 1000, TxRef: "tx-old",
	})
	if !errors.Is(err, store.ErrClaimLost) {
		t.Errorf("Expected ErrClaimLost for the superseded claim, got %v", err)
	}
	_, err = s.RecordWithdrawalFailure(ctx, store.WithdrawalFailureParams{
		SessionId: "s1", ClaimId: first[0].ClaimId, Error: "late", MaxRetries: 3,
	})
	if !errors.Is(err, store.ErrClaimLost) {
		t.Errorf("Expected ErrClaimLost recording a failure, got %v", err)
	}

	session, _ := s.GetSession(ctx, "s1")
	if session.Status != models.SessionStatusProcessing || session.ProcessingAttempts != 0 || session.WithdrawnAmount != 0 {
		t.Errorf("Superseded claim must not touch the session, got %+v", session)
	}

	if _, _, err := s.RecordWithdrawal(ctx, store.RecordWithdrawalParams{
		SessionId: "s1", ClaimId: second[0].ClaimId, Amount: 1000, TxRef: "tx-new",
	}); err != nil {
		t.Fatalf("RecordWithdrawal by the current holder failed: %v", err)
	}
	history, _ := s.GetWithdrawalHistory(ctx, "s1")
	if len(history) != 1 || history[0].TxRef != "tx-new" {
		t.Errorf("Expected a single history row from the current holder, got %+v", history)
	}
}

func TestRecordWithdrawalFailure_RetriesThenFails(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "s1", models.SessionStatusCompleted, 1000, testEpoch)

	for attempt := 1; attempt <= 3; attempt++ {
		claimId := claimOne(t, s, "s1")
		session, err := s.RecordWithdrawalFailure(ctx, store.WithdrawalFailureParams{
			SessionId: "s1", ClaimId: claimId, Error: "relay unavailable", MaxRetries: 3, Now: testEpoch,
		})
		if err != nil {
			t.Fatalf("Attempt %d: RecordWithdrawalFailure failed: %v", attempt, err)
		}
		want := models.SessionStatusPendingRetry
		if attempt == 3 {
			want = models.SessionStatusFailed
		}
		if session.Status != want || session.ProcessingAttempts != attempt || session.LastError != "relay unavailable" {
			t.Errorf("Attempt %d: got status %s attempts %d", attempt, session.Status, session.ProcessingAttempts)
		}
	}

	if _, err := s.ClaimSession(ctx, "s1", testEpoch, true); !errors.Is(err, store.ErrSessionNotWithdrawable) {
		t.Errorf("Failed session should not be claimable, got %v", err)
	}
}

func TestRecordWithdrawalFailure_Permanent(t *testing.T) {
	s := setupTestDB(t)
	createTestSession(t, s, "s1", models.SessionStatusCompleted, 1000, testEpoch)
	claimId := claimOne(t, s, "s1")

	session, err := s.RecordWithdrawalFailure(context.Background(), store.WithdrawalFailureParams{
		SessionId: "s1", ClaimId: claimId, Error: "decryption failed", MaxRetries: 5, Permanent: true,
	})
	if err != nil {
		t.Fatalf("RecordWithdrawalFailure failed: %v", err)
	}
	if session.Status != models.SessionStatusFailed {
		t.Errorf("Expected failed, got %s", session.Status)
	}
}

func TestListWithdrawals(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "s1", models.SessionStatusCompleted, 1000, testEpoch.Add(-time.Hour))
	claimId := claimOne(t, s, "s1")
	if _, _, err := s.RecordWithdrawal(ctx, store.RecordWithdrawalParams{SessionId: "s1", ClaimId: claimId, Amount: 1000, TxRef: "tx"}); err != nil {
		t.Fatalf("RecordWithdrawal failed: %v", err)
	}

	all, err := s.ListWithdrawals(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("ListWithdrawals failed: %v", err)
	}
	mine, _ := s.ListWithdrawals(ctx, "user1", 10, 0)
	other, _ := s.ListWithdrawals(ctx, "user2", 10, 0)
	if len(all) != 1 || len(mine) != 1 || len(other) != 0 {
		t.Errorf("Unexpected counts all=%d mine=%d other=%d", len(all), len(mine), len(other))
	}
}
