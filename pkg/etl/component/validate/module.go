package validate

import "go.uber.org/fx"

// Module provides the validator factory.
var Module = fx.Options(
	fx.Provide(NewFactory),
)
