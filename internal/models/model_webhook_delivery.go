package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookDelivery is the replay-guard and audit row for one inbound gateway
// notification. The gateway's transmission id is the primary key; a duplicate
// insert means the delivery was already processed. Rows are insert-only.
type WebhookDelivery struct {
	DeliveryID     string    `gorm:"column:delivery_id;type:varchar(128);primary_key" json:"delivery_id"`
	TransmissionAt time.Time `gorm:"column:transmission_at" json:"transmission_at"`
	EventType      string    `gorm:"column:event_type;type:varchar(64);index" json:"event_type"`
	GatewayOrderID string    `gorm:"column:gateway_order_id;type:varchar(64);index" json:"gateway_order_id"`
	// Payload is the sanitized notification body; payer fields are stripped
	// before persisting.
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func (WebhookDelivery) TableName() string { return "webhook_delivery" }
