// Package listener aggregates the step listeners and the run notifier of the pipeline.
package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datafactory/pkg/etl/listener/logging"
	"github.com/tigerroll/datafactory/pkg/etl/listener/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/listener/notification"
	"github.com/tigerroll/datafactory/pkg/etl/listener/tracing"
)

// Module aggregates the step listeners and the run notifier.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
	tracing.Module,
	notification.Module,
)
