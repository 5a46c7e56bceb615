// clover loads ClinicalTrials.gov study records into a normalized Postgres
// warehouse.
//
// Usage:
//
//	clover run --load-type {full|delta} [--connector postgres]
//	clover migrate-db
//	clover init-db [--force]
//	clover status
package main

import (
	"fmt"
	"os"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(clovererrors.ExitCode(err))
	}
}
