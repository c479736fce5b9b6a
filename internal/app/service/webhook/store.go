package webhook

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/castaway-live/castaway/internal/models"
)

// Store is the replay-guard ledger keyed by the gateway's transmission id.
type Store interface {
	// Exists reports whether the delivery id was already recorded.
	Exists(ctx context.Context, deliveryID string) (bool, error)
	// InsertDelivery records a delivery. Returns false when the delivery id
	// was already recorded.
	InsertDelivery(ctx context.Context, d *models.WebhookDelivery) (bool, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) Exists(ctx context.Context, deliveryID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.WebhookDelivery{}).
		Where("delivery_id = ?", deliveryID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up webhook delivery: %w", err)
	}
	return count > 0, nil
}

func (s *gormStore) InsertDelivery(ctx context.Context, d *models.WebhookDelivery) (bool, error) {
	if d.Payload == nil {
		d.Payload = datatypes.JSON("{}")
	}
	err := s.db.WithContext(ctx).Create(d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert webhook delivery: %w", err)
	}
	return true, nil
}
