package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	models "github.com/castaway-live/castaway/internal/models"
	"github.com/castaway-live/castaway/pkg/logctx"
	"github.com/castaway-live/castaway/pkg/tool"
	types "github.com/castaway-live/castaway/pkg/types"
)

// Service owns the entitlement table. Mutations only happen inside the
// transaction of the payment order transition that triggers them, so Grant and
// RevokeForOrder take the caller's *gorm.DB.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Get returns the user's entitlement row, or nil when none exists.
func (s *Service) Get(ctx context.Context, userID string) (*models.Entitlement, error) {
	var e models.Entitlement
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}
	return &e, nil
}

// GetActive returns the entitlement only when it is currently valid against
// server time.
func (s *Service) GetActive(ctx context.Context, userID string) (*models.Entitlement, error) {
	e, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !e.Valid() {
		return nil, nil
	}
	return e, nil
}

// Grant upserts the user's entitlement inside the caller's transaction,
// recording the order that granted it.
func (s *Service) Grant(ctx context.Context, tx *gorm.DB, userID string, tier types.PremiumTier, sourceOrderID string, startedAt, expiresAt time.Time) error {
	var existing models.Entitlement
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load entitlement for grant: %w", err)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		e := &models.Entitlement{
			ID:            tool.GenerateUUIDV7(),
			UserID:        userID,
			IsActive:      true,
			Tier:          tier,
			SourceOrderID: sourceOrderID,
			StartedAt:     &startedAt,
			ExpiresAt:     &expiresAt,
		}
		if err := tx.WithContext(ctx).Create(e).Error; err != nil {
			return fmt.Errorf("failed to create entitlement: %w", err)
		}
		logctx.FromCtx(ctx, s.log).Infow("entitlement granted", "user_id", userID, "tier", tier, "expires_at", expiresAt)
		return nil
	}

	existing.IsActive = true
	existing.Tier = tier
	existing.SourceOrderID = sourceOrderID
	existing.StartedAt = &startedAt
	existing.ExpiresAt = &expiresAt
	if err := tx.WithContext(ctx).Save(&existing).Error; err != nil {
		return fmt.Errorf("failed to update entitlement: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("entitlement renewed", "user_id", userID, "tier", tier, "expires_at", expiresAt)
	return nil
}

// RevokeForOrder clears the entitlement that originated from sourceOrderID.
// An entitlement re-granted by a newer order is left untouched.
func (s *Service) RevokeForOrder(ctx context.Context, tx *gorm.DB, sourceOrderID string) error {
	var e models.Entitlement
	err := tx.WithContext(ctx).Where("source_order_id = ?", sourceOrderID).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load entitlement for revoke: %w", err)
	}

	e.IsActive = false
	e.ExpiresAt = nil
	if err := tx.WithContext(ctx).Save(&e).Error; err != nil {
		return fmt.Errorf("failed to revoke entitlement: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("entitlement revoked", "user_id", e.UserID, "source_order_id", sourceOrderID)
	return nil
}
