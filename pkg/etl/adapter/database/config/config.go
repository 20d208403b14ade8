// Package config holds the settings of the optional staging database sink.
package config

// Mode selects how an existing staging table is treated.
type Mode string

const (
	ModeReplace Mode = "replace" // ModeReplace drops and recreates the table.
	ModeAppend  Mode = "append"  // ModeAppend creates the table when missing and appends rows.
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" mapstructure:"conn_max_lifetime_minutes"`
}

// RetryConfig controls how failed loads are retried. Errors are matched by name,
// message substring or type (see exception.IsErrorOfType).
type RetryConfig struct {
	MaxAttempts     int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	IntervalMillis  int      `yaml:"interval_ms" mapstructure:"interval_ms"`
	RetryableErrors []string `yaml:"retryable_errors" mapstructure:"retryable_errors"`
}

// DatabaseConfig holds the connection and load settings of the sink.
type DatabaseConfig struct {
	Enabled     bool       `yaml:"enabled" mapstructure:"enabled"`
	Type        string     `yaml:"type" mapstructure:"type"` // Database type ("sqlite", "postgres", "mysql").
	DSN         string     `yaml:"dsn" mapstructure:"dsn"`   // DSN wins over the discrete fields below when set.
	Host        string     `yaml:"host" mapstructure:"host"`
	Port        int        `yaml:"port" mapstructure:"port"`
	Database    string     `yaml:"database" mapstructure:"database"` // Database name, or the file path for sqlite.
	User        string     `yaml:"user" mapstructure:"user"`
	Password    string     `yaml:"password" mapstructure:"password"`
	Sslmode     string     `yaml:"sslmode" mapstructure:"sslmode"`
	TablePrefix string     `yaml:"table_prefix" mapstructure:"table_prefix"`
	Mode        Mode       `yaml:"mode" mapstructure:"mode"`
	BatchSize   int        `yaml:"batch_size" mapstructure:"batch_size"`
	Pool        PoolConfig  `yaml:"pool" mapstructure:"pool"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// TableName returns the staging table name for a dataset.
func (c DatabaseConfig) TableName(dataset string) string {
	return c.TablePrefix + dataset
}
