package webhook

import (
	"go.uber.org/fx"

	"github.com/castaway-live/castaway/internal/app/service/order"
	"github.com/castaway-live/castaway/internal/app/service/processlog"
	"github.com/castaway-live/castaway/internal/platform/paypal"
)

// Module exposes the webhook reconciliation service via Fx.
var Module = fx.Options(
	fx.Provide(
		NewStore,
		func(c *paypal.Client) Verifier { return c },
		func(m order.Manager) Reconciler { return m },
		func(s *processlog.Service) Auditor { return s },
		NewService,
	),
)
