package transform

import "go.uber.org/fx"

// Module provides the transformation strategy factory.
var Module = fx.Options(
	fx.Provide(NewFactory),
)
