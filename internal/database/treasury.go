package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FindTreasuryForScope returns the treasury for scopeId, falling back to the
// global entry when the scope has none.
func (s *Service) FindTreasuryForScope(ctx context.Context, scopeId string) (*models.TreasuryConfig, error) {
	cfg, err := s.findTreasury(ctx, scopeId)
	if errors.Is(err, store.ErrTreasuryNotConfigured) && scopeId != "" {
		zap.L().Debug("No scoped treasury, using global", zap.String("scope_id", scopeId))
		return s.findTreasury(ctx, "")
	}
	return cfg, err
}

func (s *Service) findTreasury(ctx context.Context, scopeId string) (*models.TreasuryConfig, error) {
	cfg, err := scanTreasury(s.db.QueryRowContext(ctx, queryFindTreasury, scopeId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: scope %q", store.ErrTreasuryNotConfigured, scopeId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find treasury: %w", err)
	}
	return cfg, nil
}

// UpsertTreasury stores the encrypted treasury key for a scope.
func (s *Service) UpsertTreasury(ctx context.Context, scopeId, encryptedKey string, metadata map[string]string) (*models.TreasuryConfig, error) {
	if encryptedKey == "" {
		return nil, fmt.Errorf("%w: encrypted key is required", store.ErrValidation)
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	now := toUnix(s.now())
	cfg, err := scanTreasury(s.db.QueryRowContext(ctx, queryUpsertTreasury,
		uuid.New().String(), scopeId, encryptedKey, meta, now, now))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert treasury: %w", err)
	}
	zap.L().Info("Treasury config stored", zap.String("scope_id", scopeId), zap.String("id", cfg.Id))
	return cfg, nil
}

func scanTreasury(row scanner) (*models.TreasuryConfig, error) {
	var cfg models.TreasuryConfig
	var metadata sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&cfg.Id, &cfg.ScopeId, &cfg.EncryptedKey, &metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	cfg.Metadata, err = decodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	cfg.CreatedAt = fromUnix(createdAt)
	cfg.UpdatedAt = fromUnix(updatedAt)
	return &cfg, nil
}
