// Package orchestrator drives the ETL pipeline: extraction, validation,
// transformation, staged bulk loads, and the merge, all inside one run
// transaction.
package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/connectors"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/extractor"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/schema"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/transform"
)

// LoadType selects full or delta ingestion.
type LoadType string

const (
	LoadTypeFull  LoadType = "full"
	LoadTypeDelta LoadType = "delta"
)

// DefaultBatchSize is the number of buffered studies that triggers a staged
// flush + merge.
const DefaultBatchSize = 5000

// StudyStream is the pull side of the extraction pipeline.
type StudyStream interface {
	Next(ctx context.Context) (json.RawMessage, bool)
	Err() error
}

// Extractor produces the raw study stream for a run.
type Extractor interface {
	Studies(ctx context.Context, updatedSince *time.Time) StudyStream
	Retries() int64
	Close()
}

// EventSink receives load lifecycle events. Optional.
type EventSink interface {
	Emit(ctx context.Context, event events.LoadEvent)
}

// apiExtractor adapts the concrete API client to the Extractor interface.
type apiExtractor struct {
	*extractor.Client
}

func (a apiExtractor) Studies(ctx context.Context, updatedSince *time.Time) StudyStream {
	return a.Client.Studies(ctx, updatedSince)
}

// NewAPIExtractor wraps the ClinicalTrials.gov client for the orchestrator.
func NewAPIExtractor(client *extractor.Client) Extractor {
	return apiExtractor{Client: client}
}

// Config holds orchestrator settings.
type Config struct {
	BatchSize int
}

// Orchestrator wires the pipeline components for one run at a time.
type Orchestrator struct {
	connector   connectors.Connector
	extractor   Extractor
	transformer *transform.Transformer
	logger      ectologger.Logger
	cfg         Config
	sink        EventSink
}

// New creates an orchestrator. sink may be nil.
func New(connector connectors.Connector, ext Extractor, transformer *transform.Transformer, cfg Config, logger ectologger.Logger, sink EventSink) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Orchestrator{
		connector:   connector,
		extractor:   ext,
		transformer: transformer,
		logger:      logger,
		cfg:         cfg,
		sink:        sink,
	}
}

// RunETL executes one load. On success the run transaction commits with a
// SUCCESS history row inside it; on any failure the transaction rolls back
// and a FAILURE history row is recorded independently.
func (o *Orchestrator) RunETL(ctx context.Context, loadType LoadType) (models.LoadMetrics, error) {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.RunETL")
	defer span.End()

	start := time.Now()
	m := models.LoadMetrics{RowsMerged: make(map[string]int)}

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"load_type":  string(loadType),
		"batch_size": o.cfg.BatchSize,
	})
	log.Info("ETL run started")
	o.emit(ctx, events.LoadStarted, loadType, m)

	err := o.run(ctx, loadType, &m)

	m.WallClockMS = time.Since(start).Milliseconds()
	m.RetryCount = o.extractor.Retries()
	o.extractor.Close()

	if err != nil {
		m.Error = err.Error()
		m.ErrorKind = string(clovererrors.KindOf(err))

		log.WithError(err).Error("ETL run failed, rolling back")
		if rbErr := o.connector.Rollback(ctx); rbErr != nil {
			log.WithError(rbErr).Error("Rollback failed")
		}
		// the FAILURE row goes through an independent transaction so the
		// operator can see the aborted run
		if histErr := o.connector.RecordLoadHistory(ctx, models.LoadStatusFailure, m); histErr != nil {
			log.WithError(histErr).Error("Failed to record FAILURE load history")
		}

		metrics.LoadRunsTotal.WithLabelValues(string(loadType), string(models.LoadStatusFailure)).Inc()
		metrics.LoadRunDuration.WithLabelValues(string(loadType)).Observe(time.Since(start).Seconds())
		o.emit(ctx, events.LoadFailed, loadType, m)
		return m, err
	}

	metrics.LoadRunsTotal.WithLabelValues(string(loadType), string(models.LoadStatusSuccess)).Inc()
	metrics.LoadRunDuration.WithLabelValues(string(loadType)).Observe(time.Since(start).Seconds())
	o.emit(ctx, events.LoadSucceeded, loadType, m)

	log.WithFields(map[string]any{
		"studies_fetched": m.StudiesFetched,
		"studies_valid":   m.StudiesValid,
		"studies_invalid": m.StudiesInvalid,
		"wall_clock_ms":   m.WallClockMS,
	}).Info("ETL run completed successfully")
	return m, nil
}

func (o *Orchestrator) run(ctx context.Context, loadType LoadType, m *models.LoadMetrics) error {
	updatedSince, err := o.resolveWatermark(ctx, loadType)
	if err != nil {
		return err
	}

	stream := o.extractor.Studies(ctx, updatedSince)

	if err := o.connector.Begin(ctx); err != nil {
		return err
	}

	for {
		// cooperative cancellation checkpoint between records
		if ctxErr := ctx.Err(); ctxErr != nil {
			return clovererrors.New(clovererrors.KindCanceled, "run canceled").WithCause(ctxErr)
		}

		raw, ok := stream.Next(ctx)
		if !ok {
			break
		}
		m.StudiesFetched++

		if err := o.processStudy(ctx, raw, m); err != nil {
			return err
		}

		if o.transformer.StudyCount() >= o.cfg.BatchSize {
			if err := o.flushAndMerge(ctx, m); err != nil {
				return err
			}
		}
	}

	if streamErr := stream.Err(); streamErr != nil {
		return streamErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return clovererrors.New(clovererrors.KindCanceled, "run canceled").WithCause(ctxErr)
	}

	if err := o.flushAndMerge(ctx, m); err != nil {
		return err
	}

	// the SUCCESS row must be part of the run transaction: history says a
	// load happened iff its data committed
	if err := o.connector.RecordLoadHistory(ctx, models.LoadStatusSuccess, *m); err != nil {
		return err
	}

	return o.connector.Commit(ctx)
}

func (o *Orchestrator) resolveWatermark(ctx context.Context, loadType LoadType) (*time.Time, error) {
	if loadType != LoadTypeDelta {
		return nil, nil
	}

	updatedSince, err := o.connector.GetLastSuccessfulLoadTimestamp(ctx)
	if err != nil {
		return nil, err
	}
	if updatedSince == nil {
		o.logger.WithContext(ctx).Info("No successful load found, performing full load")
		return nil, nil
	}
	o.logger.WithContext(ctx).WithField("updated_since", updatedSince.UTC().Format(time.RFC3339)).Info("Delta load initiated")
	return updatedSince, nil
}

func (o *Orchestrator) processStudy(ctx context.Context, raw json.RawMessage, m *models.LoadMetrics) error {
	nctID := schema.ExtractNCTID(raw)

	study, err := schema.ParseStudy(raw)
	if err != nil {
		if !schema.IsValidationError(err) {
			return clovererrors.New(clovererrors.KindValidation, "unexpected validation failure").WithCause(err)
		}

		o.logger.WithContext(ctx).WithError(err).WithField("nct_id", nctID).Warnf("Study failed validation, routing to DLQ")
		if dlqErr := o.connector.RecordFailedStudy(ctx, nctID, raw, err.Error()); dlqErr != nil {
			return dlqErr
		}
		m.StudiesInvalid++
		metrics.StudiesProcessed.WithLabelValues("invalid").Inc()
		metrics.DLQEntriesTotal.Inc()
		return nil
	}

	// a record that validated but cannot transform signals schema drift and
	// aborts the run
	if err := o.transformer.Add(study, raw); err != nil {
		return clovererrors.Newf(clovererrors.KindTransform, "transform study %s", nctID).WithCause(err)
	}

	m.StudiesValid++
	metrics.StudiesProcessed.WithLabelValues("valid").Inc()
	return nil
}

// flushAndMerge stages every non-empty buffer and merges it immediately, in
// dependency order (raw_studies before studies before the children), so the
// staging tables can be truncated and reused by the next batch.
func (o *Orchestrator) flushAndMerge(ctx context.Context, m *models.LoadMetrics) error {
	batches := o.transformer.Batches()
	if len(batches) == 0 {
		return nil
	}

	for _, batch := range batches {
		o.logger.WithContext(ctx).WithFields(map[string]any{
			"table": batch.Table.Name,
			"rows":  batch.Len(),
		}).Debugf("Loading batch into %s", batch.Table.Name)

		if err := o.connector.BulkLoadStaging(ctx, batch); err != nil {
			return err
		}
		rows, err := o.connector.ExecuteMerge(ctx, batch.Table)
		if err != nil {
			return err
		}
		m.RowsMerged[batch.Table.Name] += int(rows)
		metrics.RowsMerged.WithLabelValues(batch.Table.Name).Add(float64(rows))
	}

	o.transformer.Clear()
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, eventType events.Type, loadType LoadType, m models.LoadMetrics) {
	if o.sink == nil {
		return
	}
	o.sink.Emit(ctx, events.LoadEvent{
		Type:     eventType,
		LoadType: string(loadType),
		Metrics:  m,
	})
}
