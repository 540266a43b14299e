package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bcnofne/shipos/pkg/config"
	"github.com/bcnofne/shipos/pkg/store"
	"github.com/bcnofne/shipos/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var configDir string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shipos",
		Short:         "Always-on personal agent runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")

	root.AddCommand(serveCmd(), watchdogCmd(), doctorCmd(), speakCmd(), versionCmd())
	return root
}

// bootstrap loads .env, the YAML config, and opens the store. Shared by
// every subcommand that touches the data directory.
func bootstrap() (*config.Config, *store.Store, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	cfg, err := config.Initialize(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	st, err := store.New(cfg.DataDir, cfg.RunDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open data store: %w", err)
	}
	return cfg, st, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build metadata",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Full())
		},
	}
}
