package ratelimit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	models "github.com/castaway-live/castaway/internal/models"
	"github.com/castaway-live/castaway/pkg/tool"
)

// ActionCreatePayment throttles order creation per user.
const ActionCreatePayment = "create_payment"

// Service is a sliding-window attempt counter backed by the rate_limit_attempt
// table. It tolerates slight over-admission at window boundaries; the point is
// abuse resistance, not precision. Old rows are swept externally.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Allow reports whether the user may perform action now, recording the attempt
// when admitted. Rejected attempts are not recorded.
func (s *Service) Allow(ctx context.Context, userID, action string, maxAttempts int, window time.Duration) (bool, error) {
	cutoff := time.Now().Add(-window)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.RateLimitAttempt{}).
		Where("user_id = ? AND action = ? AND attempted_at >= ?", userID, action, cutoff).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count attempts: %w", err)
	}
	if count >= int64(maxAttempts) {
		return false, nil
	}

	attempt := &models.RateLimitAttempt{
		ID:          tool.GenerateUUIDV7(),
		UserID:      userID,
		Action:      action,
		AttemptedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return false, fmt.Errorf("failed to record attempt: %w", err)
	}
	return true, nil
}
