package config

import (
	"go.uber.org/fx"

	dbconfig "github.com/tigerroll/datafactory/pkg/etl/adapter/database/config"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// ProviderParams defines the dependencies of NewProviderFromParams.
type ProviderParams struct {
	fx.In
	Options  LoadOptions
	Expander EnvironmentExpander
}

// NewProviderFromParams loads the configuration and schemas, then applies the configured log level.
func NewProviderFromParams(p ProviderParams) (*Provider, error) {
	opts := p.Options
	if opts.Expander == nil {
		opts.Expander = p.Expander
	}
	provider, err := LoadProvider(opts)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(provider.Config().Logging.Level)
	logger.Infof("Log level set to: %s", provider.Config().Logging.Level)
	return provider, nil
}

// NewConfigFromProvider exposes the loaded *Config.
func NewConfigFromProvider(p *Provider) *Config {
	return p.Config()
}

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Logging
}

// NewDatabaseConfigProvider extracts the sink settings from *Config.
func NewDatabaseConfigProvider(cfg *Config) dbconfig.DatabaseConfig {
	return cfg.Database
}

// Module provides the configuration provider and its sections to Fx.
// The application supplies LoadOptions.
var Module = fx.Options(
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
	fx.Provide(
		NewProviderFromParams,
		NewConfigFromProvider,
		NewLoggingConfigProvider,
		NewDatabaseConfigProvider,
	),
)
