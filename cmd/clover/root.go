package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "clover",
	Short: "ClinicalTrials.gov warehouse loader",
	Long:  "Clover ingests study records from the ClinicalTrials.gov V2 API and\nmaterializes them into a normalized Postgres warehouse.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional YAML config overlay")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateDBCmd)
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.Version = version
}
