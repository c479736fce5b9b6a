package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	models "github.com/castaway-live/castaway/internal/models"
	types "github.com/castaway-live/castaway/pkg/types"
)

type CreateOrderRequest struct {
	UserID         string            `json:"user_id"`
	EmailVerified  bool              `json:"email_verified"`
	Tier           types.PremiumTier `json:"tier"`
	IdempotencyKey string            `json:"idempotency_key"`
}

type CreateOrderResult struct {
	GatewayOrderID string            `json:"gateway_order_id"`
	Tier           types.PremiumTier `json:"tier"`
	AmountCents    int64             `json:"amount_cents"`
	Currency       string            `json:"currency"`
}

type CaptureOrderRequest struct {
	UserID         string `json:"user_id"`
	GatewayOrderID string `json:"gateway_order_id"`
}

type CaptureOrderResult struct {
	Tier                 types.PremiumTier `json:"tier"`
	EntitlementExpiresAt time.Time         `json:"entitlement_expires_at"`
}

// Manager drives the purchase lifecycle: open an order at the gateway, capture
// it, and reconcile asynchronous gateway notifications against the ledger.
type Manager interface {
	// Open a gateway order and record it as pending.
	Create(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResult, error)
	// Finalize a gateway order and promote ledger + entitlement atomically.
	Capture(ctx context.Context, req *CaptureOrderRequest) (*CaptureOrderResult, error)
	// Reconcile a capture-completed notification. No-ops are not errors.
	CompleteFromWebhook(ctx context.Context, gatewayOrderID, captureID string, amount decimal.Decimal, currency string) error
	// Reconcile a refund notification.
	RefundFromWebhook(ctx context.Context, gatewayOrderID string) error
	// Scan orders (used by admin list pages).
	ScanOrders(ctx context.Context, req *ScanOrdersRequest) (*ScanOrdersResponse, error)
}

// Gateway is the outbound payment-gateway surface the manager needs.
type Gateway interface {
	CreateOrder(ctx context.Context, referenceID, amountValue, currency, description string) (string, error)
	CaptureOrder(ctx context.Context, gatewayOrderID string) (*GatewayCapture, error)
}

// GatewayCapture mirrors paypal.Capture without importing the platform package.
type GatewayCapture struct {
	CaptureID string
	Amount    decimal.Decimal
	Currency  string
}

// Limiter is the sliding-window attempt counter applied before gateway calls.
type Limiter interface {
	Allow(ctx context.Context, userID, action string, maxAttempts int, window time.Duration) (bool, error)
}

// Entitlements is the read surface used for the already-entitled guard.
type Entitlements interface {
	GetActive(ctx context.Context, userID string) (*models.Entitlement, error)
}

// Store is the durable ledger. Conditional transitions return false when the
// guarded status did not match, which is the sole ordering mechanism between
// the capture round-trip and the webhook.
type Store interface {
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*models.PaymentOrder, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error)
	CreatePending(ctx context.Context, o *models.PaymentOrder) error
	// CompletePending transitions pending -> completed and grants the
	// entitlement in the same transaction.
	CompletePending(ctx context.Context, gatewayOrderID, captureID string, completedAt, expiresAt time.Time) (bool, error)
	// FailPending transitions pending -> failed.
	FailPending(ctx context.Context, gatewayOrderID string) (bool, error)
	// RefundCompleted transitions completed -> refunded and revokes the
	// entitlement granted by this order in the same transaction.
	RefundCompleted(ctx context.Context, gatewayOrderID string) (bool, error)
}

// Scan order request/response.
type ScanOrdersRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanOrdersResponse struct {
	Items []*models.PaymentOrder `json:"items"`
	Total int64                  `json:"total"`
}
