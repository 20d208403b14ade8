package fix

import "go.uber.org/fx"

// Module provides the fixer factory.
var Module = fx.Options(
	fx.Provide(NewFactory),
)
