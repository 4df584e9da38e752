package database

import (
	"context"
	"testing"
	"time"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *Service {
	t.Helper()
	service, err := NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	service.now = func() time.Time { return testEpoch }
	t.Cleanup(service.Close)
	return service
}

func createTestSession(t *testing.T, s *Service, id string, status models.SessionStatus, amount int64, availableAt time.Time) *models.DepositSession {
	t.Helper()
	session, err := s.CreateSession(context.Background(), store.CreateSessionParams{
		Id:                    id,
		UserId:                "user1",
		WalletAddress:         "wallet-" + id,
		DepositType:           models.DepositTypeRelay,
		Currency:              "SOL",
		Status:                status,
		DetectedAmount:        amount,
		DepositAmount:         amount,
		CreditedAmount:        amount,
		EncryptedSigningKey:   "ciphertext-" + id,
		RelayTxRef:            "relay-" + id,
		WithdrawalAvailableAt: availableAt,
		CreatedAt:             testEpoch,
	})
	if err != nil {
		t.Fatalf("CreateSession(%s) failed: %v", id, err)
	}
	return session
}

func TestNewService_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.DatabaseConfig
	}{
		{"empty path", models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}},
		{"no connections", models.DatabaseConfig{Path: ":memory:", PingTimeout: time.Second}},
		{"negative idle", models.DatabaseConfig{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: -1, PingTimeout: time.Second}},
		{"no ping timeout", models.DatabaseConfig{Path: ":memory:", MaxOpenConns: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(context.Background(), tt.cfg); err == nil {
				t.Error("Expected configuration error, got nil")
			}
		})
	}
}

func TestSchema_CreditLogIsAppendOnly(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	tx, err := s.AddCredit(ctx, store.CreditParams{UserId: "user1", Currency: "USDC", Amount: 10, Type: models.TransactionTypeDeposit})
	if err != nil {
		t.Fatalf("AddCredit failed: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE credit_transactions SET amount = 99 WHERE id = ?", tx.Id); err == nil {
		t.Error("Expected update of credit transaction to be rejected")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credit_transactions WHERE id = ?", tx.Id); err == nil {
		t.Error("Expected delete of credit transaction to be rejected")
	}
}

func TestSchema_SigningKeyIsWriteOnce(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	createTestSession(t, s, "s1", models.SessionStatusCompleted, 1000, testEpoch)

	if _, err := s.db.ExecContext(ctx, "UPDATE deposit_sessions SET encrypted_signing_key = 'other' WHERE id = 's1'"); err == nil {
		t.Error("Expected signing key overwrite to be rejected")
	}
}
