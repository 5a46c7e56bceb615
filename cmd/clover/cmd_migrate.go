package main

import (
	"context"

	"github.com/spf13/cobra"
)

var migrateDBCmd = &cobra.Command{
	Use:   "migrate-db",
	Short: "Apply database migrations",
	RunE:  runMigrateDB,
}

func runMigrateDB(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := connectDB(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Infof("Running database migrations from %s", cfg.DatabaseMigrationFolderPath)
	return runMigrations(cfg, db, logger)
}
