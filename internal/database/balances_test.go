package database

import (
	"context"
	"errors"
	"testing"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

func TestGetBalance_NoBalance(t *testing.T) {
	s := setupTestDB(t)

	balance, err := s.GetBalance(context.Background(), "user1", "USDC")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Balance != 0 || balance.HeldBalance != 0 {
		t.Errorf("Expected zero balance, got %+v", balance)
	}
}

func TestGetOrCreateBalance(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	balance, err := s.GetOrCreateBalance(ctx, "user1", "USDC")
	if err != nil {
		t.Fatalf("GetOrCreateBalance failed: %v", err)
	}
	if balance.CreatedAt.IsZero() {
		t.Error("Expected persisted row with creation time")
	}

	all, err := s.GetAllBalances(ctx, "user1")
	if err != nil {
		t.Fatalf("GetAllBalances failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 balance row, got %d", len(all))
	}
}

func TestSetHeldBalance_CannotExceedBalance(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.AddCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 100, Type: models.TransactionTypeDeposit}); err != nil {
		t.Fatalf("AddCredit failed: %v", err)
	}
	if err := s.SetHeldBalance(ctx, "user1", "USDC", 101); !errors.Is(err, store.ErrHoldExceedsBalance) {
		t.Errorf("Expected ErrHoldExceedsBalance, got %v", err)
	}
	if err := s.SetHeldBalance(ctx, "user1", "USDC", -1); !errors.Is(err, store.ErrValidation) {
		t.Errorf("Expected ErrValidation for negative hold, got %v", err)
	}
	if err := s.SetHeldBalance(ctx, "user1", "USDC", 100); err != nil {
		t.Errorf("SetHeldBalance at balance failed: %v", err)
	}
}

func TestGetUserStats(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.AddCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 300, Type: models.TransactionTypeDeposit}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 20, Type: models.TransactionTypeAdjustment}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeductCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 120, Type: models.TransactionTypeSpend}); err != nil {
		t.Fatal(err)
	}

	stats, err := s.GetUserStats(ctx, "user1", "USDC")
	if err != nil {
		t.Fatalf("GetUserStats failed: %v", err)
	}
	if stats.TransactionCount != 3 || stats.TotalDeposited != 300 || stats.TotalAdjusted != 20 ||
		stats.TotalSpent != -120 || stats.Balance != 200 {
		t.Errorf("Unexpected user stats: %+v", stats)
	}
}
