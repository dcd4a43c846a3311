package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crmoverlay/api/internal/config"
	"crmoverlay/api/internal/discovery"
	"crmoverlay/api/internal/host"
	"crmoverlay/api/internal/logging"
	"crmoverlay/api/internal/store"
)

var (
	cfg    config.Config
	logger *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "overlay-api",
		Short: "CRM label overlay for a third-party messaging page",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			var err error
			logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, label discovery and reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	discoverCmd = &cobra.Command{
		Use:   "discover",
		Short: "Run one label discovery pass against the host page and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd.Context())
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the remote schema",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return store.ApplyMigrations(cmd.Context(), db, cfg.MigrationsDir)
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the most recent migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return store.RollbackMigrations(cmd.Context(), db, cfg.MigrationsDir, steps)
		},
	}
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(serveCmd, discoverCmd, migrateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDiscover(ctx context.Context) error {
	page, err := host.NewChrome(ctx, host.Options{DebugURL: cfg.ChromeDebugURL, HostURL: cfg.HostURL}, logger)
	if err != nil {
		return err
	}
	defer page.Close()

	orchestrator := discovery.NewOrchestrator(discovery.DefaultStrategies(page, cfg.SampleSize), page, logger.Named("discovery"), nil)
	result := orchestrator.Pass(ctx)
	logger.Info("discovery pass finished",
		zap.String("strategy", string(result.Source)),
		zap.Int("count", len(result.Labels)),
		zap.Duration("elapsed", result.Duration))

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result.Labels)
}
