package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/extractor"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/orchestrator"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/transform"
)

var runFlags struct {
	loadType  string
	connector string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ETL process",
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.loadType, "load-type", "delta", "Type of load: 'full' or 'delta'")
	f.StringVar(&runFlags.connector, "connector", "", "Database connector to use (defaults to CONNECTOR_NAME)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	loadType := orchestrator.LoadType(runFlags.loadType)
	if loadType != orchestrator.LoadTypeFull && loadType != orchestrator.LoadTypeDelta {
		return clovererrors.Newf(clovererrors.KindLoad, "invalid load type %q (use 'full' or 'delta')", runFlags.loadType)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.connector != "" {
		cfg.ConnectorName = runFlags.connector
	}

	logger := newLogger(cfg)

	// cancellable between records; SIGINT/SIGTERM triggers the same path as
	// a fatal error
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  cfg.AppName,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		OTLPProtocol: cfg.TracingOTLPProtocol,
		OTLPInsecure: cfg.TracingOTLPInsecure,
	})
	if err != nil {
		return clovererrors.New(clovererrors.KindLoad, "initialize tracing").WithCause(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

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

	if cfg.MetricsPort > 0 {
		server := health.NewServer(db, logger)
		server.Start(cfg.MetricsPort)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	if cfg.RedisAddr != "" {
		release, err := acquireRunLock(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer release()
	}

	var sink orchestrator.EventSink
	if cfg.KafkaBrokers != "" {
		emitter := events.NewEmitter(events.Config{
			Brokers: events.ParseBrokers(cfg.KafkaBrokers),
			Topic:   cfg.KafkaEventsTopic,
		}, logger)
		defer emitter.Close()
		sink = emitter
	}

	client := extractor.NewClient(extractor.Config{
		BaseURL:     cfg.APIBaseURL,
		PageSize:    cfg.APIPageSize,
		Timeout:     time.Duration(cfg.APITimeoutSeconds) * time.Second,
		MaxRetries:  cfg.APIMaxRetries,
		BackoffBase: time.Duration(cfg.APIBackoffBaseSeconds) * time.Second,
		BackoffCap:  time.Duration(cfg.APIBackoffCapSeconds) * time.Second,
	}, logger)

	orch := orchestrator.New(
		connector,
		orchestrator.NewAPIExtractor(client),
		transform.NewTransformer(),
		orchestrator.Config{BatchSize: cfg.LoadBatchSizeRows},
		logger,
		sink,
	)

	_, err = orch.RunETL(ctx, loadType)
	return err
}

// acquireRunLock takes the distributed run lock so only one loader writes the
// warehouse at a time. A held lock is a transient condition: retry later.
func acquireRunLock(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (func(), error) {
	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return nil, clovererrors.New(clovererrors.KindLoad, "connect to redis").WithCause(err)
	}

	locker := redis.NewLocker(client, "clover:")
	lock, err := locker.Acquire(ctx, "etl-run", time.Duration(cfg.RunLockTTLSeconds)*time.Second)
	if err != nil {
		_ = client.Close()
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return nil, clovererrors.New(clovererrors.KindLoad, "another load run holds the lock").AsTransient()
		}
		return nil, clovererrors.New(clovererrors.KindLoad, "acquire run lock").WithCause(err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.WithError(err).Warnf("Failed to release run lock")
		}
		_ = client.Close()
	}, nil
}
