package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ent0n29/isoauditor/internal/app"
	"github.com/ent0n29/isoauditor/internal/config"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "auditor",
		Short:         "ISO 27001:2022 auditor assistant with per-user session memory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := config.LoadDotEnv(envFile); err != nil && cmd.Flags().Changed("env-file") {
				slog.Warn("env file not loaded", "path", envFile, "err", err)
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newReplayCmd(), newVersionCmd())
	return root
}

// loadConfig reads the environment and installs the process logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat))
	return cfg, nil
}
