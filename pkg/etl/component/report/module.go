package report

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datafactory/pkg/etl/core/port"
)

// Module provides the reporter, also as a port.Reporter.
var Module = fx.Options(
	fx.Provide(
		NewReporter,
		func(r *Reporter) port.Reporter { return r },
	),
)
