package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

var initDBFlags struct {
	force bool
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "DESTRUCTIVE: drop all tables and re-create the schema from scratch",
	RunE:  runInitDB,
}

func init() {
	initDBCmd.Flags().BoolVar(&initDBFlags.force, "force", false, "Bypass confirmation prompt")
}

func runInitDB(cmd *cobra.Command, _ []string) error {
	if !initDBFlags.force {
		fmt.Fprint(cmd.OutOrStdout(), "Are you sure you want to drop all tables and re-initialize the database? This action is irreversible. [y/N]: ")
		reader := bufio.NewReader(cmd.InOrStdin())
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	db, err := connectDB(ctx, cfg, logger)
	if err != nil {
		return err
	}

	connector, err := newConnector(cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer connector.Close()

	logger.Info("Dropping all existing tables")
	if err := connector.DropAllTables(ctx); err != nil {
		return clovererrors.New(clovererrors.KindLoad, "drop tables").WithCause(err)
	}

	logger.Info("Running migrations to create a fresh schema")
	if err := runMigrations(cfg, db, logger); err != nil {
		return err
	}

	logger.Info("Database successfully initialized")
	return nil
}
