package metrics

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datafactory/pkg/etl/core/port"
)

// Module adds the metrics listener to the step listener group.
// The recorder itself comes from the infrastructure layer.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewMetricsStepListener, fx.ResultTags(port.StepListenerGroup))),
)
