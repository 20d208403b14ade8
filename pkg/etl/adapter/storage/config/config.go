package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type    string `yaml:"type" mapstructure:"type"`         // Type of storage; only "local" is built in.
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"` // Base directory for relative object names.
}

// DatasourcesConfig holds a map of named storage configurations.
type DatasourcesConfig map[string]StorageConfig
