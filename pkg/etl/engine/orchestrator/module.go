package orchestrator

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datafactory/pkg/etl/engine/factory"
)

// Module provides the Orchestrator over the PipelineFactory.
var Module = fx.Options(
	fx.Provide(
		func(f *factory.PipelineFactory) PipelineFactory { return f },
		func(p Params) *Orchestrator { return New(p) },
	),
)
