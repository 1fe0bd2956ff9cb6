package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/semblog/errors"
)

const (
	// DefaultEnvPrefix prefixes environment overrides, e.g. SEMBLOG_LOG_LEVEL
	DefaultEnvPrefix = "SEMBLOG"

	maxConfigSize = 1 << 20
)

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment override prefix
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer and the environment overrides
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(DefaultConfig())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		layer, err := readLayer(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, layer)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode merged layers")
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode configuration")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// readLayer reads a JSON or YAML file into a generic map. Files ending in
// .json are JSON; everything else is parsed as YAML.
func readLayer(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d > %d bytes", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var layer map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &layer)
	default:
		err = yaml.Unmarshal(data, &layer)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return layer, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Null values in override leave the base untouched.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies PREFIX_* environment variables on top of the
// file layers
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := l.env(name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := l.env(name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return l.envError(name, v, err)
		}
		*dst = b
		return nil
	}
	integer := func(name string, dst *int) error {
		v, ok := l.env(name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return l.envError(name, v, err)
		}
		*dst = n
		return nil
	}

	// GraphQL overrides
	str("BIND_ADDRESS", &cfg.GraphQL.BindAddress)
	str("GRAPHQL_PATH", &cfg.GraphQL.Path)
	str("GRAPHQL_TIMEOUT", &cfg.GraphQL.TimeoutStr)
	if err := boolean("PLAYGROUND", &cfg.GraphQL.EnablePlayground); err != nil {
		return err
	}

	// Logging overrides
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	// Metrics overrides
	if err := boolean("METRICS_ENABLED", &cfg.Metrics.Enabled); err != nil {
		return err
	}
	str("METRICS_ADDRESS", &cfg.Metrics.Address)

	// NATS overrides
	if err := boolean("NATS_ENABLED", &cfg.NATS.Enabled); err != nil {
		return err
	}
	str("NATS_URL", &cfg.NATS.URL)
	str("NATS_USERNAME", &cfg.NATS.Username)
	str("NATS_PASSWORD", &cfg.NATS.Password)
	str("NATS_TOKEN", &cfg.NATS.Token)

	// Seed overrides
	if err := boolean("SEED_ENABLED", &cfg.Seed.Enabled); err != nil {
		return err
	}
	return integer("SEED_USERS", &cfg.Seed.Users)
}

func (l *Loader) env(name string) (string, bool) {
	v, ok := l.lookupEnv(l.envPrefix + "_" + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (l *Loader) envError(name, value string, err error) error {
	return errors.WrapInvalid(fmt.Errorf("%s_%s=%q: %w", l.envPrefix, name, value, err),
		"Loader", "applyEnvOverrides", "parse environment override")
}

// SaveToFile writes the configuration as JSON, or YAML for .yaml/.yml paths
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.WrapFatal(err, "Config", "SaveToFile", "encode configuration")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapTransient(err, "Config", "SaveToFile", "write "+path)
	}
	return nil
}
