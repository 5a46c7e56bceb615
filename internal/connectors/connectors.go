// Package connectors defines the backend boundary between the orchestrator
// and a concrete warehouse implementation.
package connectors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Connector is the contract every warehouse backend implements. One connector
// instance serves one run; the run's writes are bracketed by Begin/Commit/
// Rollback on a single transaction, except for DLQ rows and FAILURE history
// rows, which commit independently so they survive rollback.
type Connector interface {
	// Begin/Commit/Rollback bracket the run. Redundant calls are no-ops.
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// BulkLoadStaging truncates the batch's staging table and streams the
	// rows into it with the backend's bulk protocol.
	BulkLoadStaging(ctx context.Context, batch models.Batch) error

	// ExecuteMerge upserts the staging table into its target, conflicting on
	// the table's natural key. Returns the number of rows written.
	ExecuteMerge(ctx context.Context, table models.Table) (int64, error)

	// RecordFailedStudy inserts one dead-letter row outside the run
	// transaction.
	RecordFailedStudy(ctx context.Context, nctID string, payload json.RawMessage, errorMessage string) error

	// RecordLoadHistory records a run outcome: inside the transaction for
	// SUCCESS, on an independent connection for FAILURE.
	RecordLoadHistory(ctx context.Context, status models.LoadStatus, m models.LoadMetrics) error

	// GetLastSuccessfulLoadTimestamp returns the delta high-water mark, or
	// nil when no successful load exists.
	GetLastSuccessfulLoadTimestamp(ctx context.Context) (*time.Time, error)

	GetLastLoadHistory(ctx context.Context) (*models.LoadHistoryEntry, error)
	GetLastSuccessfulLoadHistory(ctx context.Context) (*models.LoadHistoryEntry, error)

	// TruncateAllTables empties every warehouse and staging table.
	TruncateAllTables(ctx context.Context) error

	// DropAllTables destroys the schema. Used only by init-db.
	DropAllTables(ctx context.Context) error

	Close() error
}
