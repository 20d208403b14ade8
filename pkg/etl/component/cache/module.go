package cache

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datafactory/pkg/etl/core/port"
)

// Module provides the step cache as a port.Cache.
var Module = fx.Provide(fx.Annotate(NewManager, fx.As(new(port.Cache))))
