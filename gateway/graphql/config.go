package graphql

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/semblog/errors"
)

// Config holds configuration for the GraphQL gateway
type Config struct {
	// BindAddress is the HTTP bind address (default: ":8080")
	BindAddress string `json:"bind_address" yaml:"bind_address"`

	// Path is the GraphQL endpoint path (default: "/graphql")
	Path string `json:"path" yaml:"path"`

	// EnablePlayground serves GraphQL Playground at "/" (default: true)
	EnablePlayground bool `json:"enable_playground" yaml:"enable_playground"`

	// EnableCORS enables CORS headers (default: true)
	EnableCORS bool `json:"enable_cors" yaml:"enable_cors"`

	// CORSOrigins lists allowed CORS origins (default: ["*"])
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`

	// TimeoutStr bounds a single query or mutation (default: "30s")
	TimeoutStr string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxQueryDepth limits selection nesting (default: 10)
	MaxQueryDepth int `json:"max_query_depth,omitempty" yaml:"max_query_depth,omitempty"`

	// KeepAliveStr is the websocket ping interval, "0s" disables pings (default: "15s")
	KeepAliveStr string `json:"keep_alive,omitempty" yaml:"keep_alive,omitempty"`

	// InitTimeoutStr is how long a websocket client may wait before
	// sending connection_init (default: "10s")
	InitTimeoutStr string `json:"init_timeout,omitempty" yaml:"init_timeout,omitempty"`

	// RateLimit is the sustained number of operations per second accepted
	// over HTTP and websocket subscribe messages; negative disables the
	// limit (default: 100)
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// RateBurst is how many operations may arrive at once (default: 10)
	RateBurst int `json:"rate_burst,omitempty" yaml:"rate_burst,omitempty"`

	timeout     time.Duration
	keepAlive   time.Duration
	initTimeout time.Duration
}

// Validate ensures the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		c.BindAddress = ":8080"
	}

	if c.Path == "" {
		c.Path = "/graphql"
	}
	if c.Path[0] != '/' {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"path must start with /")
	}

	timeout, err := parseDuration(c.TimeoutStr, 30*time.Second, "timeout")
	if err != nil {
		return err
	}
	if timeout < 100*time.Millisecond || timeout > 5*time.Minute {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 100ms and 5m")
	}
	c.timeout = timeout

	keepAlive, err := parseDuration(c.KeepAliveStr, 15*time.Second, "keep_alive")
	if err != nil {
		return err
	}
	if keepAlive < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"keep_alive must not be negative")
	}
	c.keepAlive = keepAlive

	initTimeout, err := parseDuration(c.InitTimeoutStr, 10*time.Second, "init_timeout")
	if err != nil {
		return err
	}
	if initTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"init_timeout must be positive")
	}
	c.initTimeout = initTimeout

	if c.MaxQueryDepth == 0 {
		c.MaxQueryDepth = 10
	}
	if c.MaxQueryDepth < 1 || c.MaxQueryDepth > 50 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_query_depth must be between 1 and 50")
	}

	if c.RateLimit == 0 {
		c.RateLimit = 100
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
	if c.RateBurst < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"rate_burst must not be negative")
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}

	return nil
}

func parseDuration(s string, def time.Duration, field string) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WrapInvalid(err, "Config", "Validate",
			fmt.Sprintf("invalid %s format: %s", field, s))
	}
	return d, nil
}

// Timeout returns the parsed request timeout
func (c *Config) Timeout() time.Duration {
	return c.timeout
}

// KeepAlive returns the parsed websocket ping interval
func (c *Config) KeepAlive() time.Duration {
	return c.keepAlive
}

// InitTimeout returns the parsed websocket connection_init timeout
func (c *Config) InitTimeout() time.Duration {
	return c.initTimeout
}

// Limit returns the configured rate as a limiter rate
func (c *Config) Limit() rate.Limit {
	if c.RateLimit < 0 {
		return rate.Inf
	}
	return rate.Limit(c.RateLimit)
}

// DefaultConfig returns default GraphQL gateway configuration
func DefaultConfig() Config {
	return Config{
		BindAddress:      ":8080",
		Path:             "/graphql",
		EnablePlayground: true,
		EnableCORS:       true,
		CORSOrigins:      []string{"*"},
		TimeoutStr:       "30s",
		MaxQueryDepth:    10,
		KeepAliveStr:     "15s",
		InitTimeoutStr:   "10s",
		RateLimit:        100,
		RateBurst:        10,
	}
}
