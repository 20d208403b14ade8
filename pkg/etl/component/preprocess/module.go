package preprocess

import "go.uber.org/fx"

// Module provides the cleaning strategy factory.
var Module = fx.Options(
	fx.Provide(NewFactory),
)
