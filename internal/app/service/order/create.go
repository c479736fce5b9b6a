package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/castaway-live/castaway/internal/app/service/ratelimit"
	models "github.com/castaway-live/castaway/internal/models"
	"github.com/castaway-live/castaway/pkg/logctx"
	"github.com/castaway-live/castaway/pkg/tool"
	types "github.com/castaway-live/castaway/pkg/types"
)

// Create validates a purchase request, enforces rate limiting and idempotency,
// opens a gateway order and records it as pending. The ledger row is written
// only after the gateway call succeeds, so a gateway failure leaves nothing
// behind.
func (s *Service) Create(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResult, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if !req.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	plan := s.cfg.GetPlanByTier(req.Tier)
	if plan == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, req.Tier)
	}
	if req.IdempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}

	window := time.Duration(s.cfg.RateLimit.CreateOrderWindowSeconds) * time.Second
	allowed, err := s.limiter.Allow(ctx, req.UserID, ratelimit.ActionCreatePayment, s.cfg.RateLimit.CreateOrderMax, window)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	// A retried request returns the stored order unchanged instead of opening
	// a second gateway order.
	existing, err := s.store.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if existing != nil {
		logctx.FromCtx(ctx, s.log).Infow("create_order idempotent replay",
			"user_id", req.UserID, "gateway_order_id", existing.GatewayOrderID)
		return createResultFromOrder(existing), nil
	}

	active, err := s.entitlements.GetActive(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("entitlement guard failed: %w", err)
	}
	if active != nil {
		return nil, ErrAlreadyEntitled
	}

	id := tool.GenerateUUIDV7()
	description := fmt.Sprintf("Castaway premium (%s)", plan.Tier)
	gatewayOrderID, err := s.gateway.CreateOrder(ctx, id, plan.AmountValue(), plan.Currency, description)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("gateway create order failed", "user_id", req.UserID, "error", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	o := &models.PaymentOrder{
		ID:             id,
		UserID:         req.UserID,
		GatewayOrderID: gatewayOrderID,
		Tier:           plan.Tier,
		AmountCents:    plan.AmountCents,
		Currency:       plan.Currency,
		Status:         types.OrderStatusPending,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := s.store.CreatePending(ctx, o); err != nil {
		// Two concurrent requests with the same key can both miss the lookup;
		// the unique constraint picks the winner and we return its order.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, lookupErr := s.store.GetByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			if lookupErr == nil && winner != nil {
				return createResultFromOrder(winner), nil
			}
		}
		return nil, fmt.Errorf("failed to record pending order: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("order created",
		"user_id", req.UserID, "order_id", id, "gateway_order_id", gatewayOrderID, "tier", plan.Tier)
	return createResultFromOrder(o), nil
}

func createResultFromOrder(o *models.PaymentOrder) *CreateOrderResult {
	return &CreateOrderResult{
		GatewayOrderID: o.GatewayOrderID,
		Tier:           o.Tier,
		AmountCents:    o.AmountCents,
		Currency:       o.Currency,
	}
}
