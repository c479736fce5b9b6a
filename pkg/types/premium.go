package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type PremiumTier string

const (
	PremiumTierMonthly PremiumTier = "monthly"
	PremiumTierYearly  PremiumTier = "yearly"
)

func (t PremiumTier) Valid() bool {
	return t == PremiumTierMonthly || t == PremiumTierYearly
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// PremiumPlan is one entry of the canonical price table. Clients only ever
// select a plan by tier; amounts are derived server-side from this table.
type PremiumPlan struct {
	Tier         PremiumTier `json:"tier" mapstructure:"tier"`
	AmountCents  int64       `json:"amount_cents" mapstructure:"amount_cents"`
	Currency     string      `json:"currency" mapstructure:"currency"`
	DurationDays int         `json:"duration_days" mapstructure:"duration_days"`
}

func (p *PremiumPlan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// AmountDecimal returns the plan price as a major-unit decimal (e.g. 499 -> 4.99).
func (p *PremiumPlan) AmountDecimal() decimal.Decimal {
	return decimal.NewFromInt(p.AmountCents).Shift(-2)
}

// AmountValue returns the gateway wire format of the price ("4.99").
func (p *PremiumPlan) AmountValue() string {
	return p.AmountDecimal().StringFixed(2)
}
