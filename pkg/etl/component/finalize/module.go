package finalize

import "go.uber.org/fx"

// Module provides the final cleanup strategy.
var Module = fx.Options(
	fx.Provide(New),
)
