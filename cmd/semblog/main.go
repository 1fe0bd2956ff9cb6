// Package main implements the semblog command: an in-memory blog graph
// served over GraphQL with live subscriptions.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360/semblog/config"
	"github.com/c360/semblog/gateway/graphql"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semblog"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Blog graph GraphQL server",
		Long:          "semblog serves users, posts and comments over GraphQL, with websocket subscriptions for new posts and comments.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSchemaCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cli := &cliConfig{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL server",
		Example: `  semblog serve --config semblog.yaml
  semblog serve --seed --log-format text --log-level debug
  SEMBLOG_NATS_ENABLED=true semblog serve -c base.yaml -c prod.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cli)
			if err != nil {
				return err
			}
			if cli.validateOnly {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
				return nil
			}

			logger := setupLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			return a.run(ctx, cli.shutdownTimeout)
		},
	}
	bindServeFlags(cmd, cli)
	return cmd
}

// loadConfig layers the config files, the environment and finally the
// command-line flags
func loadConfig(cli *cliConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	for _, path := range cli.configPaths {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if cli.logLevel != "" {
		cfg.Log.Level = cli.logLevel
	}
	if cli.logFormat != "" {
		cfg.Log.Format = cli.logFormat
	}
	if cli.bindAddress != "" {
		cfg.GraphQL.BindAddress = cli.bindAddress
	}
	if cli.seed {
		cfg.Seed.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the GraphQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printSchema(cmd.OutOrStdout())
		},
	}
}

func printSchema(w io.Writer) error {
	if _, err := graphql.LoadSchema(); err != nil {
		return err
	}
	_, err := io.WriteString(w, graphql.SchemaSDL())
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (build %s, %s)\n",
				appName, Version, BuildTime, runtime.Version())
		},
	}
}
