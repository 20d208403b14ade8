package dataio

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datafactory/pkg/etl/core/port"
)

// Module provides the Loader and Saver over the default storage connection.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewLoader, fx.As(new(port.Loader))),
		fx.Annotate(NewSaver, fx.As(new(port.Saver))),
	),
)
