/*
main.go - Application entry point

PURPOSE:
  The fintrack command. Loads configuration, sets up logging, and
  dispatches to a subcommand.

COMMANDS:
  serve            Run the GraphQL server (default when no command given)
  migrate up       Apply pending schema migrations
  migrate down     Roll back every migration
  migrate version  Print the current schema version
  seed <scenario>  Load demo data (--list to show scenarios)
  version          Print the build version

CONFIGURATION:
  --config  YAML file (default: ./fintrack.yaml if present)
  FINTRACK_* environment variables and a .env file override the file.
  See config/config.go for every key.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the root context is cancelled:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close broker, cache and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  FINTRACK_AUTH_JWT_SECRET=... fintrack serve

  # Run with in-memory database
  FINTRACK_DATABASE_PATH=":memory:" fintrack serve

  # Load the Acme demo invoice
  fintrack seed freelancer

SEE ALSO:
  - serve.go: Dependency wiring and HTTP lifecycle
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/warp/fintrack/config"
)

var (
	cfgFile string
	version = "dev"

	// cfg and logger are set by loadConfig before any subcommand runs.
	cfg    *config.Config
	logger *slog.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "fintrack",
		Short:             "Personal finance tracker with invoice aggregation",
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./fintrack.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(versionCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" && cmd.Parent() == cmd.Root() {
		return nil
	}

	v, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	c, err := config.Load(v)
	if err != nil {
		return err
	}

	l, err := c.Log.NewLogger(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(l)

	cfg, logger = c, l
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fintrack %s\n", version)
		},
	}
}
