package models

import (
	"time"

	"github.com/castaway-live/castaway/pkg/types"
)

// PaymentOrder is the ledger row for one attempted premium purchase.
// Status only moves forward: pending -> completed|failed, completed -> refunded.
// Rows are never deleted.
type PaymentOrder struct {
	ID             string `gorm:"column:id;primary_key;type:uuid;index:idx_user_id_id,priority:2,sort:desc" json:"id"`
	UserID         string `gorm:"column:user_id;type:varchar(64);not null;index:idx_user_id_id,priority:1;uniqueIndex:unique_user_id_idempotency_key,priority:1" json:"user_id"`
	GatewayOrderID string `gorm:"column:gateway_order_id;type:varchar(64);not null;uniqueIndex" json:"gateway_order_id"`
	// GatewayCaptureID stays nil until the gateway confirms the capture.
	GatewayCaptureID *string           `gorm:"column:gateway_capture_id;type:varchar(64)" json:"gateway_capture_id"`
	Tier             types.PremiumTier `gorm:"column:tier;type:varchar(16);not null" json:"tier"`
	AmountCents      int64             `gorm:"column:amount_cents;type:bigint;not null" json:"amount_cents"`
	Currency         string            `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status           types.OrderStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	// IdempotencyKey is the client-generated retry token, one per purchase
	// attempt. Globally unique; the composite index with user_id serves the
	// per-user replay lookup.
	IdempotencyKey       string     `gorm:"column:idempotency_key;type:varchar(128);not null;uniqueIndex;uniqueIndex:unique_user_id_idempotency_key,priority:2" json:"idempotency_key"`
	CompletedAt          *time.Time `gorm:"column:completed_at;default:null" json:"completed_at"`
	EntitlementExpiresAt *time.Time `gorm:"column:entitlement_expires_at;default:null" json:"entitlement_expires_at"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (PaymentOrder) TableName() string {
	return "payment_order"
}

func (o *PaymentOrder) IsFinal() bool {
	if o == nil {
		return false
	}
	return o.Status != types.OrderStatusPending
}
