package local

import (
	"context"

	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/datafactory/pkg/etl/adapter/storage"
)

// Module provides the local storage provider and the pipeline's default connection.
var Module = fx.Options(
	fx.Provide(NewLocalProvider),
	fx.Provide(NewDefaultConnection),
	fx.Invoke(registerShutdown),
)

func registerShutdown(lc fx.Lifecycle, p storageAdapter.StorageProvider) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.CloseAll()
		},
	})
}
