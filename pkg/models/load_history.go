package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// LoadStatus is the terminal status of one ETL run.
type LoadStatus string

const (
	LoadStatusSuccess LoadStatus = "SUCCESS"
	LoadStatusFailure LoadStatus = "FAILURE"
)

// LoadMetrics is the metrics blob persisted with each load_history row.
// FAILURE rows carry Error and ErrorKind; rows_merged holds per-table counts.
type LoadMetrics struct {
	StudiesFetched int            `json:"studies_fetched"`
	StudiesValid   int            `json:"studies_valid"`
	StudiesInvalid int            `json:"studies_invalid"`
	RowsMerged     map[string]int `json:"rows_merged"`
	WallClockMS    int64          `json:"wall_clock_ms"`
	RetryCount     int64          `json:"retry_count"`
	Error          string         `json:"error,omitempty"`
	ErrorKind      string         `json:"error_kind,omitempty"`
}

// LoadHistoryEntry records one run. The maximum SUCCESS load_timestamp is the
// high-water mark for delta loads.
type LoadHistoryEntry struct {
	ID            int64                       `db:"id"`
	LoadTimestamp time.Time                   `db:"load_timestamp"`
	Status        LoadStatus                  `db:"status"`
	Metrics       database.JSONB[LoadMetrics] `db:"metrics"`
}
