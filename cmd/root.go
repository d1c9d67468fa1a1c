// Package cmd defines the websearch command line: one subcommand per process
// role, all sharing a config file and logger.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/config"
	"github.com/JakeFAU/websearch/internal/logging"
	"github.com/JakeFAU/websearch/internal/server"
)

// newRootCmd creates the root command and its role subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "websearch",
		Short: "A distributed crawler and search engine.",
		Long: `websearch runs one role of a small distributed search engine:
a URL frontier, an index replica, the gateway that fronts the replicas,
or a pool of crawler workers feeding them.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(
		newRoleCmd(&cfgFile, config.RoleFrontier, "Serves the shared URL queue and stopword list", func(cfg *config.Config, port int) {
			cfg.Frontier.Port = port
		}),
		newRoleCmd(&cfgFile, config.RoleReplica, "Serves one copy of the inverted index", func(cfg *config.Config, port int) {
			cfg.Replica.Port = port
		}),
		newRoleCmd(&cfgFile, config.RoleGateway, "Fronts the replicas with search, statistics and control", func(cfg *config.Config, port int) {
			cfg.Gateway.Port = port
		}),
		newRoleCmd(&cfgFile, config.RoleCrawler, "Runs crawler workers against the frontier", func(cfg *config.Config, port int) {
			cfg.Crawler.MetricsPort = port
		}),
	)
	return cmd
}

func newRoleCmd(cfgFile *string, role config.Role, short string, setPort func(*config.Config, int)) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   string(role),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				setPort(&cfg, port)
			}
			return runRole(cmd.Context(), cfg, role)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port, overriding the config file")
	return cmd
}

func runRole(ctx context.Context, cfg config.Config, role config.Role) error {
	logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	restore := zap.ReplaceGlobals(logger)
	defer restore()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, cfg, role, logger)
	if err != nil {
		return fmt.Errorf("build %s: %w", role, err)
	}
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run %s: %w", role, err)
	}
	logger.Info("shutdown complete")
	return nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
