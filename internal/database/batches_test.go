package database

import (
	"context"
	"errors"
	"testing"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

func TestBatchLifecycle(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		createTestSession(t, s, id, models.SessionStatusPendingBatch, 100, testEpoch)
	}

	pending, err := s.FetchPendingBatch(ctx, 2)
	if err != nil {
		t.Fatalf("FetchPendingBatch failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending sessions, got %d", len(pending))
	}

	if err := s.ReserveBatch(ctx, []string{"m1", "m2"}, "batch-1", testEpoch); err != nil {
		t.Fatalf("ReserveBatch failed: %v", err)
	}

	// m3 arrived after the fetch and stays pending.
	n, err := s.MarkBatched(ctx, "batch-1", "swap-tx", testEpoch)
	if err != nil {
		t.Fatalf("MarkBatched failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 sessions batched, got %d", n)
	}

	m1, _ := s.GetSession(ctx, "m1")
	m3, _ := s.GetSession(ctx, "m3")
	if m1.Status != models.SessionStatusBatched || m1.BatchTxRef != "swap-tx" || m1.BatchId != "batch-1" {
		t.Errorf("Unexpected batched session: %+v", m1)
	}
	if m3.Status != models.SessionStatusPendingBatch || m3.BatchId != "" {
		t.Errorf("Expected m3 untouched, got %+v", m3)
	}
}

func TestReserveBatch_AllOrNothing(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "m1", models.SessionStatusPendingBatch, 100, testEpoch)
	createTestSession(t, s, "m2", models.SessionStatusPendingBatch, 100, testEpoch)

	if err := s.ReserveBatch(ctx, []string{"m1"}, "batch-1", testEpoch); err != nil {
		t.Fatalf("ReserveBatch failed: %v", err)
	}
	err := s.ReserveBatch(ctx, []string{"m1", "m2"}, "batch-2", testEpoch)
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification, got %v", err)
	}

	m2, _ := s.GetSession(ctx, "m2")
	if m2.Status != models.SessionStatusPendingBatch {
		t.Errorf("Expected m2 still pending after rollback, got %s", m2.Status)
	}

	if err := s.ReserveBatch(ctx, nil, "batch-3", testEpoch); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for empty batch, got %v", err)
	}
}

func TestReleaseBatch(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "m1", models.SessionStatusPendingBatch, 100, testEpoch)

	if err := s.ReserveBatch(ctx, []string{"m1"}, "batch-1", testEpoch); err != nil {
		t.Fatalf("ReserveBatch failed: %v", err)
	}
	n, err := s.ReleaseBatch(ctx, "batch-1", testEpoch)
	if err != nil || n != 1 {
		t.Fatalf("ReleaseBatch = %d, %v", n, err)
	}
	m1, _ := s.GetSession(ctx, "m1")
	if m1.Status != models.SessionStatusPendingBatch || m1.BatchId != "" {
		t.Errorf("Expected released session, got %+v", m1)
	}
}

func TestTreasury_ScopeFallback(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.FindTreasuryForScope(ctx, "tenant-a"); !errors.Is(err, store.ErrTreasuryNotConfigured) {
		t.Fatalf("Expected ErrTreasuryNotConfigured, got %v", err)
	}

	if _, err := s.UpsertTreasury(ctx, "", "global-key", nil); err != nil {
		t.Fatalf("UpsertTreasury failed: %v", err)
	}
	cfg, err := s.FindTreasuryForScope(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("FindTreasuryForScope failed: %v", err)
	}
	if cfg.EncryptedKey != "global-key" {
		t.Errorf("Expected global fallback, got %s", cfg.EncryptedKey)
	}

	first, _ := s.UpsertTreasury(ctx, "tenant-a", "scoped-key", map[string]string{"label": "a"})
	second, err := s.UpsertTreasury(ctx, "tenant-a", "rotated-key", nil)
	if err != nil {
		t.Fatalf("UpsertTreasury rotate failed: %v", err)
	}
	if first.Id != second.Id {
		t.Errorf("Expected upsert to keep id %s, got %s", first.Id, second.Id)
	}
	cfg, _ = s.FindTreasuryForScope(ctx, "tenant-a")
	if cfg.EncryptedKey != "rotated-key" {
		t.Errorf("Expected rotated key, got %s", cfg.EncryptedKey)
	}
}
