package tracing

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datafactory/pkg/etl/core/port"
)

// Module adds the tracing listener to the step listener group.
// The concrete Tracer is provided by the infrastructure layer.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewTracingStepListener, fx.ResultTags(port.StepListenerGroup))),
)
