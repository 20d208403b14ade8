package factory

import "go.uber.org/fx"

// Module provides the PipelineFactory.
var Module = fx.Options(
	fx.Provide(NewPipelineFactory),
)
