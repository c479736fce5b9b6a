package ratelimit

import "go.uber.org/fx"

// Module exposes the rate limiter via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
