package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

func TestCreateSession_RequiresKeyAndAmount(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, store.CreateSessionParams{UserId: "user1", DepositAmount: 10, Status: models.SessionStatusCompleted})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation without key, got %v", err)
	}
	_, err = s.CreateSession(ctx, store.CreateSessionParams{UserId: "user1", EncryptedSigningKey: "k", Status: models.SessionStatusCompleted})
	if !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount without amount, got %v", err)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := setupTestDB(t)
	if _, err := s.GetSession(context.Background(), "missing"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestListSessions_Filters(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "a", models.SessionStatusCompleted, 100, testEpoch)
	createTestSession(t, s, "b", models.SessionStatusPendingBatch, 100, testEpoch)
	createTestSession(t, s, "c", models.SessionStatusFailed, 100, testEpoch)

	sessions, err := s.ListSessions(ctx, store.SessionFilter{
		UserId:   "user1",
		Statuses: []models.SessionStatus{models.SessionStatusCompleted, models.SessionStatusFailed},
	})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(sessions))
	}

	sessions, _ = s.ListSessions(ctx, store.SessionFilter{Limit: 1})
	if len(sessions) != 1 {
		t.Errorf("Expected limit 1, got %d", len(sessions))
	}
}

func TestClaimReadySessions_RespectsAvailabilityAndLease(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "ready", models.SessionStatusCompleted, 1000, testEpoch.Add(-time.Hour))
	createTestSession(t, s, "retry", models.SessionStatusPendingRetry, 1000, testEpoch.Add(-2*time.Hour))
	createTestSession(t, s, "future", models.SessionStatusCompleted, 1000, testEpoch.Add(time.Hour))
	createTestSession(t, s, "batch", models.SessionStatusPendingBatch, 1000, testEpoch.Add(-time.Hour))

	claimed, err := s.ClaimReadySessions(ctx, store.ClaimParams{Now: testEpoch, Limit: 10, LeaseTimeout: 10 * time.Minute})
	if err != nil {
		t.Fatalf("ClaimReadySessions failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("Expected 2 claimed sessions, got %d", len(claimed))
	}
	if claimed[0].Id != "retry" || claimed[1].Id != "ready" {
		t.Errorf("Expected oldest availability first, got %s, %s", claimed[0].Id, claimed[1].Id)
	}
	for _, c := range claimed {
		if c.Status != models.SessionStatusProcessing || c.ClaimedAt == nil {
			t.Errorf("Session %s not leased: %+v", c.Id, c)
		}
	}

	// A second pass inside the lease claims nothing.
	again, _ := s.ClaimReadySessions(ctx, store.ClaimParams{Now: testEpoch.Add(time.Minute), Limit: 10, LeaseTimeout: 10 * time.Minute})
	if len(again) != 0 {
		t.Errorf("Expected leased sessions to be skipped, got %d", len(again))
	}

	// After the lease expires they are reclaimable.
	stale, _ := s.ClaimReadySessions(ctx, store.ClaimParams{Now: testEpoch.Add(11 * time.Minute), Limit: 10, LeaseTimeout: 10 * time.Minute})
	if len(stale) != 2 {
		t.Errorf("Expected 2 stale leases reclaimed, got %d", len(stale))
	}
}

func TestReleaseSessions_RestoresPriorStatus(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "ready", models.SessionStatusCompleted, 1000, testEpoch.Add(-time.Hour))
	createTestSession(t, s, "retry", models.SessionStatusPendingRetry, 1000, testEpoch.Add(-time.Hour))

	if _, err := s.ClaimReadySessions(ctx, store.ClaimParams{Now: testEpoch, Limit: 10}); err != nil {
		t.Fatalf("ClaimReadySessions failed: %v", err)
	}
	if err := s.ReleaseSessions(ctx, []string{"ready", "retry"}); err != nil {
		t.Fatalf("ReleaseSessions failed: %v", err)
	}

	ready, _ := s.GetSession(ctx, "ready")
	retry, _ := s.GetSession(ctx, "retry")
	if ready.Status != models.SessionStatusCompleted || ready.ClaimedAt != nil {
		t.Errorf("Expected ready back to completed, got %s", ready.Status)
	}
	if retry.Status != models.SessionStatusPendingRetry {
		t.Errorf("Expected retry back to pending_retry, got %s", retry.Status)
	}
}

func TestClaimSession(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "future", models.SessionStatusCompleted, 1000, testEpoch.Add(time.Hour))
	createTestSession(t, s, "batch", models.SessionStatusPendingBatch, 1000, testEpoch)

	if _, err := s.ClaimSession(ctx, "future", testEpoch, false); !errors.Is(err, store.ErrPrivacyPeriodActive) {
		t.Errorf("Expected ErrPrivacyPeriodActive, got %v", err)
	}
	if _, err := s.ClaimSession(ctx, "batch", testEpoch, true); !errors.Is(err, store.ErrSessionNotWithdrawable) {
		t.Errorf("Expected ErrSessionNotWithdrawable, got %v", err)
	}
	if _, err := s.ClaimSession(ctx, "missing", testEpoch, true); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	session, err := s.ClaimSession(ctx, "future", testEpoch, true)
	if err != nil {
		t.Fatalf("Forced ClaimSession failed: %v", err)
	}
	if session.Status != models.SessionStatusProcessing {
		t.Errorf("Expected processing, got %s", session.Status)
	}
	if _, err := s.ClaimSession(ctx, "future", testEpoch, true); !errors.Is(err, store.ErrSessionNotWithdrawable) {
		t.Errorf("Expected second claim to fail, got %v", err)
	}
}

func TestRenewClaim(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "s1", models.SessionStatusCompleted, 1000, testEpoch.Add(-time.Hour))
	params := store.ClaimParams{Now: testEpoch, Limit: 10, LeaseTimeout: 10 * time.Minute}

	claimed, err := s.ClaimReadySessions(ctx, params)
	if err != nil || len(claimed) != 1 || claimed[0].ClaimId == "" {
		t.Fatalf("Expected one claim with an id, got %+v (%v)", claimed, err)
	}
	claimId := claimed[0].ClaimId

	if err := s.RenewClaim(ctx, "s1", claimId, testEpoch.Add(9*time.Minute)); err != nil {
		t.Fatalf("RenewClaim failed: %v", err)
	}
	params.Now = testEpoch.Add(11 * time.Minute)
	if again, _ := s.ClaimReadySessions(ctx, params); len(again) != 0 {
		t.Errorf("Renewed lease must not be reclaimed, got %d", len(again))
	}

	if err := s.RenewClaim(ctx, "s1", "someone-else", params.Now); !errors.Is(err, store.ErrClaimLost) {
		t.Errorf("Expected ErrClaimLost for a foreign claim id, got %v", err)
	}
	if err := s.RenewClaim(ctx, "missing", claimId, params.Now); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	if err := s.ReleaseSessions(ctx, []string{"s1"}); err != nil {
		t.Fatalf("ReleaseSessions failed: %v", err)
	}
	if released, _ := s.GetSession(ctx, "s1"); released.ClaimId != "" {
		t.Errorf("Release should clear the claim id, got %q", released.ClaimId)
	}
	if err := s.RenewClaim(ctx, "s1", claimId, params.Now); !errors.Is(err, store.ErrClaimLost) {
		t.Errorf("Expected ErrClaimLost after release, got %v", err)
	}
}

func TestConcurrentClaims_AreDisjoint(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	const sessions = 30
	eligible := make(map[string]bool)
	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("s-%02d", i)
		status := models.SessionStatusCompleted
		if i%3 == 0 {
			status = models.SessionStatusPendingRetry
		}
		createTestSession(t, s, id, status, 1000, testEpoch.Add(-time.Hour))
		eligible[id] = true
	}
	createTestSession(t, s, "future", models.SessionStatusCompleted, 1000, testEpoch.Add(time.Hour))
	createTestSession(t, s, "batch", models.SessionStatusPendingBatch, 1000, testEpoch.Add(-time.Hour))

	var wg sync.WaitGroup
	var mu sync.Mutex
	owners := make(map[string]int)
	record := func(ids ...string) {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range ids {
			owners[id]++
		}
	}

	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := s.ClaimReadySessions(ctx, store.ClaimParams{Now: testEpoch, Limit: 4, LeaseTimeout: time.Hour})
				if err != nil {
					t.Errorf("ClaimReadySessions failed: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				for _, c := range claimed {
					record(c.Id)
				}
			}
		}()
	}
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < sessions; i++ {
				id := fmt.Sprintf("s-%02d", i)
				if _, err := s.ClaimSession(ctx, id, testEpoch, false); err == nil {
					record(id)
				}
			}
		}()
	}
	wg.Wait()

	if len(owners) != len(eligible) {
		t.Errorf("Expected %d sessions claimed, got %d", len(eligible), len(owners))
	}
	for id, n := range owners {
		if !eligible[id] {
			t.Errorf("Session %s claimed but not eligible", id)
		}
		if n != 1 {
			t.Errorf("Session %s claimed %d times", id, n)
		}
	}
}
