package database

import (
	"context"
	"errors"
	"testing"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

func TestAddCredit_Deposit(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	tx, err := s.AddCredit(ctx, store.CreditParams{
		UserId:         "user1",
		Currency:       "USDC",
		Amount:         1_000_000,
		Type:           models.TransactionTypeDeposit,
		IdempotencyKey: "dep-1",
		ReferenceType:  "deposit_session",
		ReferenceId:    "s1",
		Metadata:       map[string]string{"relay_tx_ref": "abc"},
	})
	if err != nil {
		t.Fatalf("AddCredit failed: %v", err)
	}
	if tx.Amount != 1_000_000 {
		t.Errorf("Expected signed amount 1000000, got %d", tx.Amount)
	}

	balance, err := s.GetBalance(ctx, "user1", "USDC")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Balance != 1_000_000 {
		t.Errorf("Expected balance 1000000, got %d", balance.Balance)
	}

	found, err := s.FindTransactionByIdempotencyKey(ctx, "user1", "dep-1")
	if err != nil {
		t.Fatalf("FindTransactionByIdempotencyKey failed: %v", err)
	}
	if found.Id != tx.Id || found.Metadata["relay_tx_ref"] != "abc" || found.ReferenceId != "s1" {
		t.Errorf("Unexpected stored transaction: %+v", found)
	}
}

func TestDeductCredit_Insufficient(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.AddCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 500, Type: models.TransactionTypeDeposit}); err != nil {
		t.Fatalf("AddCredit failed: %v", err)
	}

	_, err := s.DeductCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 501, Type: models.TransactionTypeSpend})
	if !errors.Is(err, store.ErrInsufficientCredit) {
		t.Fatalf("Expected ErrInsufficientCredit, got %v", err)
	}

	balance, _ := s.GetBalance(ctx, "user1", "USDC")
	if balance.Balance != 500 {
		t.Errorf("Failed deduction changed balance to %d", balance.Balance)
	}
	history, _ := s.GetTransactionHistory(ctx, "user1", "USDC", 10, 0)
	if len(history) != 1 {
		t.Errorf("Expected 1 transaction after failed deduction, got %d", len(history))
	}
}

func TestDeductCredit_RespectsHeldBalance(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.AddCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 1000, Type: models.TransactionTypeDeposit}); err != nil {
		t.Fatalf("AddCredit failed: %v", err)
	}
	if err := s.SetHeldBalance(ctx, "user1", "USDC", 600); err != nil {
		t.Fatalf("SetHeldBalance failed: %v", err)
	}

	if _, err := s.DeductCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 500, Type: models.TransactionTypeSpend}); !errors.Is(err, store.ErrInsufficientCredit) {
		t.Fatalf("Expected ErrInsufficientCredit with held funds, got %v", err)
	}
	if _, err := s.DeductCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 400, Type: models.TransactionTypeSpend}); err != nil {
		t.Fatalf("Deduction within available failed: %v", err)
	}

	balance, _ := s.GetBalance(ctx, "user1", "USDC")
	if balance.Balance != 600 || balance.Available() != 0 {
		t.Errorf("Expected balance 600 available 0, got %d/%d", balance.Balance, balance.Available())
	}
}

func TestAddCredit_DuplicateIdempotencyKey(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	params := store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 100, Type: models.TransactionTypeDeposit, IdempotencyKey: "k1"}

	if _, err := s.AddCredit(ctx, params); err != nil {
		t.Fatalf("First AddCredit failed: %v", err)
	}
	if _, err := s.AddCredit(ctx, params); !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected ErrDuplicateTransaction, got %v", err)
	}

	balance, _ := s.GetBalance(ctx, "user1", "USDC")
	if balance.Balance != 100 {
		t.Errorf("Duplicate changed balance to %d", balance.Balance)
	}

	// The same key is independent per user.
	params.UserId = "user2"
	if _, err := s.AddCredit(ctx, params); err != nil {
		t.Errorf("Same key for another user should succeed: %v", err)
	}
}

func TestAddCredit_InvalidAmount(t *testing.T) {
	s := setupTestDB(t)
	for _, amount := range []int64{0, -5} {
		_, err := s.AddCredit(context.Background(), store.CreditParams{UserId: "user1", Currency: "USDC", Amount: amount, Type: models.TransactionTypeDeposit})
		if !errors.Is(err, store.ErrInvalidAmount) {
			t.Errorf("Amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestLedger_BalanceEqualsSumOfTransactions(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	// deposit 100, spend 30, spend 80 (rejected), deposit 50
	if _, err := s.AddCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 100, Type: models.TransactionTypeDeposit}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeductCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 30, Type: models.TransactionTypeSpend}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeductCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 80, Type: models.TransactionTypeSpend}); !errors.Is(err, store.ErrInsufficientCredit) {
		t.Fatalf("Expected ErrInsufficientCredit, got %v", err)
	}
	if _, err := s.AddCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 50, Type: models.TransactionTypeDeposit}); err != nil {
		t.Fatal(err)
	}

	balance, _ := s.GetBalance(ctx, "user1", "USDC")
	if balance.Balance != 120 {
		t.Errorf("Expected balance 120, got %d", balance.Balance)
	}
	if err := s.ReconcileBalance(ctx, "user1", "USDC"); err != nil {
		t.Errorf("ReconcileBalance failed: %v", err)
	}

	history, err := s.GetTransactionHistory(ctx, "user1", "USDC", 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(history))
	}
	if history[0].Amount != 50 || history[2].Amount != 100 {
		t.Errorf("Expected newest first, got %d ... %d", history[0].Amount, history[2].Amount)
	}

	stats, err := s.GetStats(ctx, "USDC")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalDeposited != 150 || stats.TotalSpent != -30 || stats.NetBalance != 120 || stats.UserCount != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestFindTransactionByIdempotencyKey_NotFound(t *testing.T) {
	s := setupTestDB(t)
	_, err := s.FindTransactionByIdempotencyKey(context.Background(), "user1", "missing")
	if !errors.Is(err, store.ErrTransactionNotFound) {
		t.Errorf("Expected ErrTransactionNotFound, got %v", err)
	}
}
