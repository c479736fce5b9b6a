package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/castaway-live/castaway/internal/app/service/entitlement"
	models "github.com/castaway-live/castaway/internal/models"
	types "github.com/castaway-live/castaway/pkg/types"
)

// gormStore implements Store on postgres. The status-guarded UPDATEs are the
// mutual-exclusion primitive between the capture round-trip and the webhook:
// whichever runs first flips the row, the other observes zero affected rows.
type gormStore struct {
	db   *gorm.DB
	ents *entitlement.Service
}

func NewStore(db *gorm.DB, ents *entitlement.Service) Store {
	return &gormStore{db: db, ents: ents}
}

func (g *gormStore) GetByIdempotencyKey(ctx context.Context, userID, key string) (*models.PaymentOrder, error) {
	var o models.PaymentOrder
	err := g.db.WithContext(ctx).Where("user_id = ? AND idempotency_key = ?", userID, key).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (g *gormStore) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	var o models.PaymentOrder
	err := g.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (g *gormStore) CreatePending(ctx context.Context, o *models.PaymentOrder) error {
	return g.db.WithContext(ctx).Create(o).Error
}

func (g *gormStore) CompletePending(ctx context.Context, gatewayOrderID, captureID string, completedAt, expiresAt time.Time) (bool, error) {
	var promoted bool
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentOrder{}).
			Where("gateway_order_id = ? AND status = ?", gatewayOrderID, types.OrderStatusPending).
			Updates(map[string]any{
				"status":                 types.OrderStatusCompleted,
				"gateway_capture_id":     captureID,
				"completed_at":           completedAt,
				"entitlement_expires_at": expiresAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to promote order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var o models.PaymentOrder
		if err := tx.Where("gateway_order_id = ?", gatewayOrderID).First(&o).Error; err != nil {
			return fmt.Errorf("failed to reload promoted order: %w", err)
		}
		if err := g.ents.Grant(ctx, tx, o.UserID, o.Tier, o.ID, completedAt, expiresAt); err != nil {
			return err
		}
		promoted = true
		return nil
	})
	return promoted, err
}

func (g *gormStore) FailPending(ctx context.Context, gatewayOrderID string) (bool, error) {
	res := g.db.WithContext(ctx).Model(&models.PaymentOrder{}).
		Where("gateway_order_id = ? AND status = ?", gatewayOrderID, types.OrderStatusPending).
		Update("status", types.OrderStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *gormStore) RefundCompleted(ctx context.Context, gatewayOrderID string) (bool, error) {
	var refunded bool
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentOrder{}).
			Where("gateway_order_id = ? AND status = ?", gatewayOrderID, types.OrderStatusCompleted).
			Update("status", types.OrderStatusRefunded)
		if res.Error != nil {
			return fmt.Errorf("failed to mark order refunded: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var o models.PaymentOrder
		if err := tx.Where("gateway_order_id = ?", gatewayOrderID).First(&o).Error; err != nil {
			return fmt.Errorf("failed to reload refunded order: %w", err)
		}
		if err := g.ents.RevokeForOrder(ctx, tx, o.ID); err != nil {
			return err
		}
		refunded = true
		return nil
	})
	return refunded, err
}
