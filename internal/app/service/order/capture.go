package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/castaway-live/castaway/pkg/logctx"
	types "github.com/castaway-live/castaway/pkg/types"
)

// Capture finalizes a gateway order initiated by the user's own client. The
// charged amount comes from the gateway's capture response, never from the
// client, and is checked against the price table before anything is granted.
func (s *Service) Capture(ctx context.Context, req *CaptureOrderRequest) (*CaptureOrderResult, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	o, err := s.store.GetByGatewayOrderID(ctx, req.GatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("order lookup failed: %w", err)
	}
	// A foreign order id gets the same answer as a missing one.
	if o == nil || o.UserID != req.UserID {
		return nil, ErrNotFound
	}
	if o.IsFinal() {
		return nil, fmt.Errorf("%w: status %s", ErrAlreadyProcessed, o.Status)
	}

	captured, err := s.gateway.CaptureOrder(ctx, o.GatewayOrderID)
	if err != nil {
		// The webhook can finalize the order between our pending read and the
		// capture call; the gateway then rejects the capture, but the ledger
		// row carries the result the client is owed.
		if errors.Is(err, ErrAlreadyCaptured) {
			return s.settledResult(ctx, o.GatewayOrderID)
		}
		logctx.FromCtx(ctx, s.log).Errorw("gateway capture failed",
			"gateway_order_id", o.GatewayOrderID, "error", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	plan := s.cfg.GetPlanByTier(o.Tier)
	if plan == nil {
		return nil, fmt.Errorf("no plan for tier %q", o.Tier)
	}
	if !chargedAmountMatches(plan.AmountDecimal(), plan.Currency, captured.Amount, captured.Currency) {
		logctx.FromCtx(ctx, s.log).Warnw("capture amount mismatch",
			"gateway_order_id", o.GatewayOrderID,
			"expected", plan.AmountValue(), "charged", captured.Amount.String(), "currency", captured.Currency)
		if _, err := s.store.FailPending(ctx, o.GatewayOrderID); err != nil {
			return nil, fmt.Errorf("failed to mark order failed: %w", err)
		}
		return nil, ErrAmountMismatch
	}

	now := time.Now()
	expiresAt := now.Add(plan.Duration())
	promoted, err := s.store.CompletePending(ctx, o.GatewayOrderID, captured.CaptureID, now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to complete order: %w", err)
	}
	if !promoted {
		// Lost the race against the webhook; the completed row carries the
		// authoritative expiry.
		return s.settledResult(ctx, o.GatewayOrderID)
	}

	logctx.FromCtx(ctx, s.log).Infow("order captured",
		"gateway_order_id", o.GatewayOrderID, "capture_id", captured.CaptureID, "expires_at", expiresAt)
	return &CaptureOrderResult{Tier: o.Tier, EntitlementExpiresAt: expiresAt}, nil
}

// settledResult re-reads an order that was finalized elsewhere. A completed
// row yields the capture result it would have produced; anything else is a
// replay against a settled order.
func (s *Service) settledResult(ctx context.Context, gatewayOrderID string) (*CaptureOrderResult, error) {
	settled, err := s.store.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("order re-read failed: %w", err)
	}
	if settled != nil && settled.Status == types.OrderStatusCompleted && settled.EntitlementExpiresAt != nil {
		return &CaptureOrderResult{Tier: settled.Tier, EntitlementExpiresAt: *settled.EntitlementExpiresAt}, nil
	}
	return nil, ErrAlreadyProcessed
}

// CompleteFromWebhook is the webhook-driven counterpart of Capture. Unknown or
// already-settled orders are no-ops; a mismatched amount leaves the order
// pending and surfaces ErrAmountMismatch for the caller to log.
func (s *Service) CompleteFromWebhook(ctx context.Context, gatewayOrderID, captureID string, amount decimal.Decimal, currency string) error {
	o, err := s.store.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("order lookup failed: %w", err)
	}
	if o == nil {
		logctx.FromCtx(ctx, s.log).Warnw("webhook for unknown order", "gateway_order_id", gatewayOrderID)
		return nil
	}
	if o.IsFinal() {
		return nil
	}

	plan := s.cfg.GetPlanByTier(o.Tier)
	if plan == nil {
		return fmt.Errorf("no plan for tier %q", o.Tier)
	}
	if !chargedAmountMatches(plan.AmountDecimal(), plan.Currency, amount, currency) {
		return fmt.Errorf("%w: gateway_order_id=%s expected=%s charged=%s %s",
			ErrAmountMismatch, gatewayOrderID, plan.AmountValue(), amount.String(), currency)
	}

	now := time.Now()
	promoted, err := s.store.CompletePending(ctx, gatewayOrderID, captureID, now, now.Add(plan.Duration()))
	if err != nil {
		return fmt.Errorf("failed to complete order: %w", err)
	}
	if !promoted {
		// Capture round-trip won the race; nothing left to do.
		return nil
	}
	logctx.FromCtx(ctx, s.log).Infow("order completed from webhook",
		"gateway_order_id", gatewayOrderID, "capture_id", captureID)
	return nil
}

// RefundFromWebhook transitions a completed order to refunded and clears the
// entitlement it granted. Anything else is a no-op.
func (s *Service) RefundFromWebhook(ctx context.Context, gatewayOrderID string) error {
	refunded, err := s.store.RefundCompleted(ctx, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("failed to refund order: %w", err)
	}
	if refunded {
		logctx.FromCtx(ctx, s.log).Infow("order refunded", "gateway_order_id", gatewayOrderID)
	}
	return nil
}

func chargedAmountMatches(expected decimal.Decimal, expectedCurrency string, charged decimal.Decimal, chargedCurrency string) bool {
	return expected.Equal(charged) && expectedCurrency == chargedCurrency
}
