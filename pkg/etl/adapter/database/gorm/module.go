package gorm

import (
	"context"

	"go.uber.org/fx"

	dbconfig "github.com/tigerroll/datafactory/pkg/etl/adapter/database/config"
	"github.com/tigerroll/datafactory/pkg/etl/core/port"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// NewSink opens the staging sink when the database is enabled. It returns a nil sink otherwise.
func NewSink(lc fx.Lifecycle, cfg dbconfig.DatabaseConfig) (port.Sink, error) {
	if !cfg.Enabled {
		logger.Debugf("Database sink disabled.")
		return nil, nil
	}
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	sink := NewTableSink(db, cfg)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sink.Close()
		},
	})
	logger.Infof("Database sink enabled: %s (mode=%s, prefix=%q).", cfg.Type, sink.cfg.Mode, cfg.TablePrefix)
	return sink, nil
}

// Module provides the optional port.Sink.
var Module = fx.Options(
	fx.Provide(NewSink),
)
