package models

import "time"

// RateLimitAttempt is one recorded attempt of a throttled action. Expired rows
// are swept by an external periodic job, not by the request path.
type RateLimitAttempt struct {
	ID          string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID      string    `gorm:"column:user_id;type:varchar(64);not null;index:idx_user_action_at,priority:1" json:"user_id"`
	Action      string    `gorm:"column:action;type:varchar(64);not null;index:idx_user_action_at,priority:2" json:"action"`
	AttemptedAt time.Time `gorm:"column:attempted_at;not null;index:idx_user_action_at,priority:3" json:"attempted_at"`
}

func (RateLimitAttempt) TableName() string { return "rate_limit_attempt" }
