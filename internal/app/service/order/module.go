package order

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"

	"github.com/castaway-live/castaway/internal/app/service/entitlement"
	"github.com/castaway-live/castaway/internal/app/service/ratelimit"
	"github.com/castaway-live/castaway/internal/platform/paypal"
)

// Module exposes the order manager via Fx, binding the platform client and
// sibling services to the interfaces the manager consumes.
var Module = fx.Options(
	fx.Provide(NewStore),
	fx.Provide(func(c *paypal.Client) Gateway { return gatewayAdapter{c} }),
	fx.Provide(func(s *ratelimit.Service) Limiter { return s }),
	fx.Provide(func(s *entitlement.Service) Entitlements { return s }),
	fx.Provide(NewService),
)

// gatewayAdapter narrows the PayPal client to the Gateway interface.
type gatewayAdapter struct{ c *paypal.Client }

func (a gatewayAdapter) CreateOrder(ctx context.Context, referenceID, amountValue, currency, description string) (string, error) {
	return a.c.CreateOrder(ctx, referenceID, amountValue, currency, description)
}

func (a gatewayAdapter) CaptureOrder(ctx context.Context, gatewayOrderID string) (*GatewayCapture, error) {
	captured, err := a.c.CaptureOrder(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, paypal.ErrOrderAlreadyCaptured) {
			return nil, fmt.Errorf("%w: %v", ErrAlreadyCaptured, err)
		}
		return nil, err
	}
	return &GatewayCapture{CaptureID: captured.CaptureID, Amount: captured.Amount, Currency: captured.Currency}, nil
}
