package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/gateway/graphql"
	"github.com/c360/semblog/graph/seed"
	"github.com/c360/semblog/natsclient"
	"github.com/c360/semblog/pubsub"
)

// Config represents the complete application configuration
type Config struct {
	Version       string              `json:"version" yaml:"version"`
	GraphQL       graphql.Config      `json:"graphql" yaml:"graphql"`
	Log           LogConfig           `json:"log" yaml:"log"`
	Metrics       MetricsConfig       `json:"metrics" yaml:"metrics"`
	Subscriptions SubscriptionsConfig `json:"subscriptions" yaml:"subscriptions"`
	NATS          NATSConfig          `json:"nats" yaml:"nats"`
	Seed          SeedConfig          `json:"seed" yaml:"seed"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// MetricsConfig controls the Prometheus endpoint. An empty Address mounts
// Path on the GraphQL server instead of starting a separate listener.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	Path    string `json:"path" yaml:"path"`
}

// SubscriptionsConfig sizes the event broker
type SubscriptionsConfig struct {
	Workers     int      `json:"workers" yaml:"workers"`
	QueueSize   int      `json:"queue_size" yaml:"queue_size"`
	BufferSize  int      `json:"buffer_size" yaml:"buffer_size"`
	StopTimeout Duration `json:"stop_timeout" yaml:"stop_timeout"`
}

// NATSConfig defines the optional event mirror connection
type NATSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	URL            string   `json:"url" yaml:"url"`
	SubjectPrefix  string   `json:"subject_prefix" yaml:"subject_prefix"`
	Username       string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string   `json:"password,omitempty" yaml:"password,omitempty"`
	Token          string   `json:"token,omitempty" yaml:"token,omitempty"`
	ConnectTimeout Duration `json:"connect_timeout" yaml:"connect_timeout"`
	MaxReconnects  int      `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait  Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
}

// SeedConfig controls generated startup data
type SeedConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Users      int    `json:"users" yaml:"users"`
	RandomSeed uint64 `json:"random_seed" yaml:"random_seed"`
}

// DefaultConfig returns the configuration used when no file sets a value
func DefaultConfig() *Config {
	broker := pubsub.DefaultConfig()
	seedDefaults := seed.DefaultConfig()

	return &Config{
		Version: "1.0.0",
		GraphQL: graphql.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Subscriptions: SubscriptionsConfig{
			Workers:     broker.Workers,
			QueueSize:   broker.QueueSize,
			BufferSize:  broker.BufferSize,
			StopTimeout: Duration(broker.StopTimeout),
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			SubjectPrefix:  pubsub.DefaultSubjectPrefix,
			ConnectTimeout: Duration(5 * time.Second),
			MaxReconnects:  -1,
			ReconnectWait:  Duration(2 * time.Second),
		},
		Seed: SeedConfig{
			Users:      seedDefaults.Users,
			RandomSeed: seedDefaults.RandomSeed,
		},
	}
}

// Validate checks the configuration and fills zero values with defaults
func (c *Config) Validate() error {
	if err := c.GraphQL.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "graphql section")
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	switch c.Log.Level {
	case "":
		c.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "":
		c.Log.Format = "json"
	case "json", "text":
	default:
		return invalid("log.format must be json or text, got %q", c.Log.Format)
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path must start with /")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" && c.Metrics.Path == c.GraphQL.Path {
		return invalid("metrics.path %s collides with the graphql path", c.Metrics.Path)
	}

	broker := c.BrokerConfig()
	if err := broker.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "subscriptions section")
	}
	c.Subscriptions = SubscriptionsConfig{
		Workers:     broker.Workers,
		QueueSize:   broker.QueueSize,
		BufferSize:  broker.BufferSize,
		StopTimeout: Duration(broker.StopTimeout),
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	if err := c.SeedConfig().Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "seed section")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = pubsub.DefaultSubjectPrefix
	}
	if !isValidSubject(c.NATS.SubjectPrefix) {
		return invalid("nats.subject_prefix %q is not valid for NATS subjects "+
			"(alphanumeric segments separated by dots)", c.NATS.SubjectPrefix)
	}
	if c.NATS.MaxReconnects < -1 {
		return invalid("nats.max_reconnects must be -1 (unlimited) or more")
	}
	if c.NATS.ConnectTimeout < 0 || c.NATS.ReconnectWait < 0 {
		return invalid("nats durations must not be negative")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return invalid("nats.url is required when nats is enabled")
	}
	if c.NATS.Token != "" && c.NATS.Username != "" {
		return invalid("nats.token and nats.username are mutually exclusive")
	}
	return nil
}

// isValidSubject checks a dotted NATS subject without wildcards
func isValidSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
				return false
			}
		}
	}
	return true
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf(format, args...), "Config", "Validate", "check configuration")
}

// BrokerConfig returns the subscription broker settings
func (c *Config) BrokerConfig() pubsub.Config {
	return pubsub.Config{
		Workers:     c.Subscriptions.Workers,
		QueueSize:   c.Subscriptions.QueueSize,
		BufferSize:  c.Subscriptions.BufferSize,
		StopTimeout: c.Subscriptions.StopTimeout.Duration(),
	}
}

// SeedConfig returns the seed generator settings
func (c *Config) SeedConfig() seed.Config {
	return seed.Config{
		Users:      c.Seed.Users,
		RandomSeed: c.Seed.RandomSeed,
	}
}

// ClientOptions translates the NATS section into natsclient options
func (n NATSConfig) ClientOptions() []natsclient.ClientOption {
	opts := []natsclient.ClientOption{
		natsclient.WithMaxReconnects(n.MaxReconnects),
	}
	if n.ConnectTimeout > 0 {
		opts = append(opts, natsclient.WithTimeout(n.ConnectTimeout.Duration()))
	}
	if n.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(n.ReconnectWait.Duration()))
	}
	switch {
	case n.Token != "":
		opts = append(opts, natsclient.WithToken(n.Token))
	case n.Username != "":
		opts = append(opts, natsclient.WithCredentials(n.Username, n.Password))
	}
	return opts
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

// Duration is a time.Duration written as a string such as "5s" in config
// files. Plain numbers are read as nanoseconds.
type Duration time.Duration

// Duration returns the value as a time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "1m30s" style strings and nanosecond numbers
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(x))
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// MarshalYAML writes the duration as a string
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts "1m30s" style strings and nanosecond integers
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.ShortTag() == "!!int" {
		var ns int64
		if err := node.Decode(&ns); err != nil {
			return err
		}
		*d = Duration(ns)
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}
