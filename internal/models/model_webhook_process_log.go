package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookProcessLogStatus string

const (
	WebhookProcessLogStatusReceived     WebhookProcessLogStatus = "received"
	WebhookProcessLogStatusHandled      WebhookProcessLogStatus = "handled"
	WebhookProcessLogStatusHandleFailed WebhookProcessLogStatus = "handle_failed"
)

// WebhookProcessLog records the handling outcome of a gateway notification for
// operational auditing. Distinct from WebhookDelivery, which is the replay guard.
type WebhookProcessLog struct {
	ID             string                  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	DeliveryID     string                  `gorm:"column:delivery_id;type:varchar(128);index" json:"delivery_id"`
	TraceID        string                  `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	EventType      string                  `gorm:"column:event_type;type:varchar(64)" json:"event_type"`
	GatewayOrderID string                  `gorm:"column:gateway_order_id;type:varchar(64)" json:"gateway_order_id"`
	Data           datatypes.JSON          `gorm:"column:data;type:jsonb" json:"data"`
	Result         *datatypes.JSON         `gorm:"column:result;type:jsonb" json:"result"`
	Status         WebhookProcessLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

func (WebhookProcessLog) TableName() string { return "webhook_process_log" }
