package models

import (
	"time"

	"github.com/castaway-live/castaway/pkg/types"
)

// Entitlement stores the premium state of a single user.
// Use Valid() to decide whether the entitlement currently applies; IsActive is
// a cached flag, the expiry comparison against server time is authoritative.
type Entitlement struct {
	ID       string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID   string            `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex" json:"user_id"`
	IsActive bool              `gorm:"column:is_active;not null" json:"is_active"`
	Tier     types.PremiumTier `gorm:"column:tier;type:varchar(16)" json:"tier"`
	// SourceOrderID links the entitlement to the payment order that granted its
	// current state. Refunds only clear the entitlement when it still
	// originates from the refunded order.
	SourceOrderID string     `gorm:"column:source_order_id;type:uuid;index" json:"source_order_id"`
	StartedAt     *time.Time `gorm:"column:started_at;default:null" json:"started_at"`
	ExpiresAt     *time.Time `gorm:"column:expires_at;default:null" json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Entitlement) TableName() string {
	return "entitlement"
}

func (e *Entitlement) Valid() bool {
	return e != nil &&
		e.IsActive &&
		e.ExpiresAt != nil &&
		e.ExpiresAt.After(time.Now())
}
