package main

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// cliConfig holds command-line configuration
type cliConfig struct {
	configPaths     []string
	logLevel        string
	logFormat       string
	bindAddress     string
	seed            bool
	shutdownTimeout time.Duration
	validateOnly    bool
}

func bindServeFlags(cmd *cobra.Command, cfg *cliConfig) {
	flags := cmd.Flags()

	// Flags fall back to environment variables
	flags.StringSliceVarP(&cfg.configPaths, "config", "c",
		getEnvList("SEMBLOG_CONFIG"),
		"Configuration file, repeat to layer overrides (env: SEMBLOG_CONFIG)")

	flags.StringVar(&cfg.logLevel, "log-level", "",
		"Log level: debug, info, warn, error; overrides the config file (env: SEMBLOG_LOG_LEVEL)")

	flags.StringVar(&cfg.logFormat, "log-format", "",
		"Log format: json, text; overrides the config file (env: SEMBLOG_LOG_FORMAT)")

	flags.StringVar(&cfg.bindAddress, "bind", "",
		"GraphQL listen address; overrides the config file (env: SEMBLOG_BIND_ADDRESS)")

	flags.BoolVar(&cfg.seed, "seed",
		getEnvBool("SEMBLOG_SEED", false),
		"Generate sample users, posts and comments at startup (env: SEMBLOG_SEED)")

	flags.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout",
		getEnvDuration("SEMBLOG_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: SEMBLOG_SHUTDOWN_TIMEOUT)")

	flags.BoolVar(&cfg.validateOnly, "validate", false,
		"Validate configuration and exit")
}

// Environment variable helper functions
func getEnvList(key string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return nil
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
