package main

import (
	"fmt"
	"os"

	"github.com/avbuyanov/postpilot/internal/config"
	"github.com/avbuyanov/postpilot/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long:  "Runs GORM auto-migration for all PostPilot tables. Safe to re-run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "postpilot.yaml", "path to PostPilot config file")
	return cmd
}

// runMigrate parses the config without requiring platform credentials,
// since schema migration only needs database access.
func runMigrate(cmd *cobra.Command, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config %s: %w", configPath, err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.DB.Driver, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Migration complete (%d tables)\n", len(db.AllModels()))
	return nil
}
