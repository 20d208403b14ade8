package logging

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datafactory/pkg/etl/core/port"
)

// Module adds the logging listener to the step listener group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewLoggingStepListener, fx.ResultTags(port.StepListenerGroup))),
)
