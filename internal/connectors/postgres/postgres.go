// Package postgres implements the warehouse connector on PostgreSQL, using
// COPY for staging loads and INSERT ... ON CONFLICT for the merge.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/internal/connectors"
	"github.com/Ramsey-B/clover/pkg/database"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	loadHistoryTable     = "load_history"
	deadLetterQueueTable = "dead_letter_queue"
)

// Connector is the PostgreSQL backend. One instance serves one run and holds
// at most one open transaction.
type Connector struct {
	db     database.DB
	logger ectologger.Logger
	tx     database.Tx
	now    func() time.Time
}

var _ connectors.Connector = (*Connector)(nil)

// New creates a PostgreSQL connector on an existing pool.
func New(db database.DB, logger ectologger.Logger) *Connector {
	return &Connector{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (c *Connector) Begin(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.Begin")
	defer span.End()

	if c.tx != nil && c.tx.IsOpen() {
		return nil // already inside the run transaction
	}

	tx, err := c.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return clovererrors.New(clovererrors.KindTransaction, "begin run transaction").WithCause(err)
	}
	c.tx = tx
	return nil
}

func (c *Connector) Commit(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.Commit")
	defer span.End()

	if c.tx == nil {
		return nil
	}
	if err := c.tx.Commit(ctx); err != nil {
		return clovererrors.New(clovererrors.KindTransaction, "commit run transaction").WithCause(err)
	}
	c.tx = nil
	return nil
}

func (c *Connector) Rollback(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.Rollback")
	defer span.End()

	if c.tx == nil {
		return nil
	}
	if err := c.tx.Rollback(ctx); err != nil {
		return clovererrors.New(clovererrors.KindTransaction, "rollback run transaction").WithCause(err)
	}
	c.tx = nil
	return nil
}

// BulkLoadStaging truncates the staging table and streams the batch through
// the COPY protocol. Must run inside the run transaction so a failed run
// leaves no staged rows behind.
func (c *Connector) BulkLoadStaging(ctx context.Context, batch models.Batch) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.BulkLoadStaging")
	defer span.End()

	if batch.Len() == 0 {
		return nil
	}
	if c.tx == nil || !c.tx.IsOpen() {
		return clovererrors.New(clovererrors.KindLoad, "bulk load outside of a run transaction")
	}

	staging := batch.Table.StagingName()

	if _, err := c.tx.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", staging)); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("table", staging).Error("Failed to truncate staging table")
		return clovererrors.Newf(clovererrors.KindLoad, "truncate %s", staging).WithCause(err)
	}

	stmt, err := c.tx.PreparexContext(ctx, pq.CopyIn(staging, batch.Table.Columns...))
	if err != nil {
		return clovererrors.Newf(clovererrors.KindLoad, "prepare COPY into %s", staging).WithCause(err)
	}

	for _, row := range batch.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			return clovererrors.Newf(clovererrors.KindLoad, "COPY row into %s", staging).WithCause(err)
		}
	}

	// a final empty Exec flushes the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return clovererrors.Newf(clovererrors.KindLoad, "flush COPY into %s", staging).WithCause(err)
	}
	if err := stmt.Close(); err != nil {
		return clovererrors.Newf(clovererrors.KindLoad, "close COPY into %s", staging).WithCause(err)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{"table": staging, "rows": batch.Len()}).Debugf("Staged %d rows into %s", batch.Len(), staging)
	return nil
}

// mergeSQL renders the staging-to-target upsert for a table. The conflict
// target is the table's declared natural key; tables whose columns are all
// key columns degrade to DO NOTHING.
func mergeSQL(table models.Table) string {
	cols := strings.Join(table.Columns, ", ")
	keys := strings.Join(table.KeyColumns, ", ")

	updateCols := table.UpdateColumns()
	var conflictAction string
	if len(updateCols) == 0 {
		conflictAction = "DO NOTHING"
	} else {
		assignments := make([]string, 0, len(updateCols))
		for _, col := range updateCols {
			assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
		conflictAction = "DO UPDATE SET " + strings.Join(assignments, ", ")
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		table.Name, cols, cols, table.StagingName(), keys, conflictAction,
	)
}

func (c *Connector) ExecuteMerge(ctx context.Context, table models.Table) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.ExecuteMerge")
	defer span.End()

	if c.tx == nil || !c.tx.IsOpen() {
		return 0, clovererrors.New(clovererrors.KindLoad, "merge outside of a run transaction")
	}

	result, err := c.tx.ExecContext(ctx, mergeSQL(table))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("table", table.Name).Error("Failed to merge staging table")
		return 0, clovererrors.Newf(clovererrors.KindLoad, "merge %s", table.Name).WithCause(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		rows = 0
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{"table": table.Name, "rows": rows}).Debugf("Merged %d rows into %s", rows, table.Name)
	return rows, nil
}

// RecordFailedStudy writes one DLQ row on the pool connection, never on the
// run transaction, so the row survives a later rollback.
func (c *Connector) RecordFailedStudy(ctx context.Context, nctID string, payload json.RawMessage, errorMessage string) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.RecordFailedStudy")
	defer span.End()

	var id *string
	if nctID != "" {
		id = &nctID
	}

	ib := database.NewInsertBuilder().
		InsertInto(deadLetterQueueTable).
		Cols("id", "nct_id", "payload", "error_message", "created_at").
		Values(uuid.New(), id, []byte(payload), errorMessage, c.now().UTC())

	query, args := ib.Build()
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("nct_id", nctID).Error("Failed to record dead letter entry")
		return clovererrors.New(clovererrors.KindLoad, "insert dead letter entry").WithCause(err)
	}
	return nil
}

// RecordLoadHistory inserts one run outcome. SUCCESS rows join the run
// transaction so the history entry and the merged data commit together;
// FAILURE rows go through the pool so they outlive the rollback.
func (c *Connector) RecordLoadHistory(ctx context.Context, status models.LoadStatus, m models.LoadMetrics) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.RecordLoadHistory")
	defer span.End()

	ib := database.NewInsertBuilder().
		InsertInto(loadHistoryTable).
		Cols("load_timestamp", "status", "metrics").
		Values(c.now().UTC(), string(status), database.NewJSONB(m))

	query, args := ib.Build()

	var err error
	if status == models.LoadStatusSuccess && c.tx != nil && c.tx.IsOpen() {
		_, err = c.tx.ExecContext(ctx, query, args...)
	} else {
		_, err = c.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("status", string(status)).Error("Failed to record load history")
		return clovererrors.New(clovererrors.KindLoad, "insert load history").WithCause(err)
	}
	return nil
}

func (c *Connector) GetLastSuccessfulLoadTimestamp(ctx context.Context) (*time.Time, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.GetLastSuccessfulLoadTimestamp")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("MAX(load_timestamp)")
	sb.From(loadHistoryTable)
	sb.Where(sb.Equal("status", string(models.LoadStatusSuccess)))

	query, args := sb.Build()
	var ts sql.NullTime
	if err := c.db.GetContext(ctx, &ts, query, args...); err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to read last successful load timestamp")
		return nil, clovererrors.New(clovererrors.KindLoad, "read high-water mark").WithCause(err)
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time
	return &t, nil
}

func (c *Connector) GetLastLoadHistory(ctx context.Context) (*models.LoadHistoryEntry, error) {
	return c.lastHistory(ctx, false)
}

func (c *Connector) GetLastSuccessfulLoadHistory(ctx context.Context) (*models.LoadHistoryEntry, error) {
	return c.lastHistory(ctx, true)
}

func (c *Connector) lastHistory(ctx context.Context, successOnly bool) (*models.LoadHistoryEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.lastHistory")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "load_timestamp", "status", "metrics")
	sb.From(loadHistoryTable)
	if successOnly {
		sb.Where(sb.Equal("status", string(models.LoadStatusSuccess)))
	}
	sb.OrderBy("load_timestamp DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var entry models.LoadHistoryEntry
	if err := c.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		c.logger.WithContext(ctx).WithError(err).Error("Failed to read load history")
		return nil, clovererrors.New(clovererrors.KindLoad, "read load history").WithCause(err)
	}
	return &entry, nil
}

// TruncateAllTables empties every warehouse and staging table. The cascade
// from raw_studies covers the children, but listing them keeps the intent
// explicit and resets identity sequences.
func (c *Connector) TruncateAllTables(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.TruncateAllTables")
	defer span.End()

	names := make([]string, 0, len(models.Tables)*2)
	for _, t := range models.Tables {
		names = append(names, t.Name, t.StagingName())
	}

	query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(names, ", "))
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to truncate warehouse tables")
		return clovererrors.New(clovererrors.KindLoad, "truncate warehouse tables").WithCause(err)
	}
	return nil
}

// DropAllTables drops every table in the public schema. Destructive; only
// init-db calls this, before re-running migrations from scratch.
func (c *Connector) DropAllTables(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Connector.DropAllTables")
	defer span.End()

	var tables []string
	if err := c.db.SelectContext(ctx, &tables,
		"SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = 'public'"); err != nil {
		return clovererrors.New(clovererrors.KindLoad, "list tables").WithCause(err)
	}
	if len(tables) == 0 {
		return nil
	}

	for i, t := range tables {
		tables[i] = pq.QuoteIdentifier(t)
	}
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", strings.Join(tables, ", "))
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to drop tables")
		return clovererrors.New(clovererrors.KindLoad, "drop tables").WithCause(err)
	}
	return nil
}

func (c *Connector) Close() error {
	if c.tx != nil && c.tx.IsOpen() {
		_ = c.tx.Rollback(context.Background())
		c.tx = nil
	}
	return c.db.Close()
}
