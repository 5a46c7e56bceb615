package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status and history of the ETL process",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
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

	last, err := connector.GetLastLoadHistory(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if last == nil {
		fmt.Fprintln(out, "No ETL run history found.")
		return nil
	}

	if last.Status == models.LoadStatusFailure {
		fmt.Fprintln(out, "ETL Status: FAILED")
		fmt.Fprintln(out, "The most recent ETL run failed. Details of the failure are below.")
		printHistory(out, "Failed Run Details:", last)

		successful, err := connector.GetLastSuccessfulLoadHistory(ctx)
		if err != nil {
			return err
		}
		if successful != nil {
			fmt.Fprintln(out, "--------------------")
			fmt.Fprintln(out, "However, a previously successful run was found.")
			printHistory(out, "Details of Last Successful Run:", successful)
		} else {
			fmt.Fprintln(out, "No prior successful runs were found.")
		}
		return nil
	}

	fmt.Fprintln(out, "ETL Status: HEALTHY")
	fmt.Fprintln(out, "The most recent ETL run completed successfully.")
	printHistory(out, "Last Run Details:", last)
	return nil
}

func printHistory(out io.Writer, title string, entry *models.LoadHistoryEntry) {
	fmt.Fprintln(out, title)
	fmt.Fprintf(out, "  Timestamp: %s\n", entry.LoadTimestamp.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(out, "  Status: %s\n", entry.Status)
	fmt.Fprintln(out, "  Metrics:")
	pretty, err := json.MarshalIndent(entry.Metrics.GetValue(), "    ", "  ")
	if err == nil {
		fmt.Fprintf(out, "    %s\n", pretty)
	}
}
