package processlog

import "go.uber.org/fx"

// Module exposes the process-log service via Fx.
var Module = fx.Options(
	fx.Provide(New),
)
