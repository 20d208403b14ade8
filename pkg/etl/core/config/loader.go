package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

const (
	moduleName = "config"
	envPrefix  = "DATAFACTORY_"

	defaultConfigFile = "config.yaml"
	defaultNSamples   = 1000
)

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	ConfigPath  string // ConfigPath is resolved against RootDir when relative.
	RootDir     string
	EnvFilePath string
	LogLevel    string // LogLevel overrides Logging.level when set.
	Expander    EnvironmentExpander
}

// Load builds a Config: defaults, then the .env file, then every YAML document in order,
// then root-relative path resolution, then DATAFACTORY_* environment overrides.
func Load(opts LoadOptions) (*Config, error) {
	root := opts.RootDir
	if root == "" {
		root = DefaultRoot()
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to resolve root directory", err)
	}

	loadEnvFile(root, opts.EnvFilePath)

	cfg := NewConfig(root)

	path := opts.ConfigPath
	if path == "" {
		path = defaultConfigFile
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warnf("Config file not found: %s. Using defaults.", path)
	case err != nil:
		return nil, exception.NewPipelineError(moduleName, "failed to read config file", err)
	default:
		expander := opts.Expander
		if expander == nil {
			expander = NewOsEnvironmentExpander()
		}
		if raw, err = expander.Expand(raw); err != nil {
			return nil, exception.NewPipelineError(moduleName, "failed to expand environment placeholders", err)
		}
		if err := mergeYAML(cfg, raw); err != nil {
			return nil, err
		}
		logger.Infof("Loaded configuration from %s", path)
	}

	resolvePaths(cfg.EngineParameters, root)

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), envPrefix); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to load config from environment variables", err)
	}
	if err := loadEngineParametersFromEnv(cfg.EngineParameters, root); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to load engine parameters from environment variables", err)
	}

	if v, ok := cfg.EngineParameters["nsamples"]; !ok || isZero(v) {
		logger.Warnf("No sample size specified, using default %d", defaultNSamples)
		cfg.EngineParameters["nsamples"] = defaultNSamples
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	return cfg, nil
}

func loadEnvFile(root, envFilePath string) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
		return
	}
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}
}

// mergeYAML decodes every document of raw, merges their top-level keys in order (later
// documents win) and applies the result over cfg.
func mergeYAML(cfg *Config, raw []byte) error {
	merged := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return exception.NewPipelineError(moduleName, "failed to parse config file", err)
		}
		if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
			continue
		}
		mergeMapping(merged, doc.Content[0])
	}

	defaults := cfg.EngineParameters
	cfg.EngineParameters = nil
	if err := merged.Decode(cfg); err != nil {
		return exception.NewPipelineError(moduleName, "failed to decode config file", err)
	}
	for k, v := range cfg.EngineParameters {
		defaults[k] = v
	}
	cfg.EngineParameters = defaults
	if cfg.Datasets == nil {
		cfg.Datasets = map[string]DatasetConfig{}
	}
	cfg.DatasetOrder = mappingKeys(merged, "Datasets")
	return nil
}

func mergeMapping(dst, src *yaml.Node) {
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, value := src.Content[i], src.Content[i+1]
		replaced := false
		for j := 0; j+1 < len(dst.Content); j += 2 {
			if dst.Content[j].Value == key.Value {
				dst.Content[j+1] = value
				replaced = true
				break
			}
		}
		if !replaced {
			dst.Content = append(dst.Content, key, value)
		}
	}
}

func mappingKeys(m *yaml.Node, key string) []string {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != key || m.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		section := m.Content[i+1]
		keys := make([]string, 0, len(section.Content)/2)
		for j := 0; j+1 < len(section.Content); j += 2 {
			keys = append(keys, section.Content[j].Value)
		}
		return keys
	}
	return nil
}

// resolvePaths makes every relative *_dir and *_path engine parameter absolute under root.
func resolvePaths(params map[string]interface{}, root string) {
	for k, v := range params {
		s, ok := v.(string)
		if !ok || s == "" || !(strings.HasSuffix(k, "_dir") || strings.HasSuffix(k, "_path")) {
			continue
		}
		params[k] = joinRoot(root, s)
	}
}

func joinRoot(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

func isZero(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.IsZero()
}

// decodeEngineParameters decodes the flattened parameter map into the typed view.
func decodeEngineParameters(params map[string]interface{}) (EngineParameters, error) {
	var out EngineParameters
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		Result:           &out,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return out, exception.NewPipelineError(moduleName, "failed to build engine parameter decoder", err)
	}
	if err := dec.Decode(params); err != nil {
		return out, exception.NewPipelineError(moduleName, "failed to decode engine parameters", err)
	}
	return out, nil
}

// loadStructFromEnv walks val by yaml tags and sets fields from PREFIX_TAG environment variables.
// Nested structs extend the prefix; maps are left to the YAML file.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch field.Kind() {
		case reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case reflect.Map:
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadEngineParametersFromEnv overrides engine parameters from DATAFACTORY_<KEY> variables,
// one for every yaml tag of EngineParameters. Values are converted to the field's type.
func loadEngineParametersFromEnv(params map[string]interface{}, root string) error {
	typ := reflect.TypeOf(EngineParameters{})
	for i := 0; i < typ.NumField(); i++ {
		fieldType := typ.Field(i)
		key := fieldType.Tag.Get("yaml")
		envValue, exists := os.LookupEnv(envPrefix + strings.ToUpper(key))
		if !exists {
			continue
		}
		field := reflect.New(fieldType.Type).Elem()
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set engine parameter '%s': %w", key, err)
		}
		value := field.Interface()
		if s, ok := value.(string); ok && (strings.HasSuffix(key, "_dir") || strings.HasSuffix(key, "_path")) {
			value = joinRoot(root, s)
		}
		params[key] = value
	}
	return nil
}

// setField converts value to the kind of field and stores it.
// Slices of strings are read as comma separated lists.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
