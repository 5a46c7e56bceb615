package main

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/connectors"
	"github.com/Ramsey-B/clover/internal/connectors/postgres"
	"github.com/Ramsey-B/clover/pkg/database"
	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, clovererrors.New(clovererrors.KindLoad, "load configuration").WithCause(err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, _ = zap.NewDevelopment()
	} else {
		zapCfg := zap.NewProductionConfig()
		if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
			zapCfg.Level = zap.NewAtomicLevelAt(level)
		}
		zapLogger, _ = zapCfg.Build()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func connectDB(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (database.DB, error) {
	db, err := database.Connect(ctx, database.ConnectConfig{
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, clovererrors.New(clovererrors.KindLoad, "connect to warehouse").WithCause(err)
	}
	return db, nil
}

func newConnector(cfg *config.Config, db database.DB, logger ectologger.Logger) (connectors.Connector, error) {
	switch cfg.ConnectorName {
	case "postgres":
		return postgres.New(db, logger), nil
	default:
		return nil, clovererrors.Newf(clovererrors.KindLoad, "unsupported connector: %s", cfg.ConnectorName)
	}
}

func runMigrations(cfg *config.Config, db database.DB, logger ectologger.Logger) error {
	driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{})
	if err != nil {
		return clovererrors.New(clovererrors.KindLoad, "create migration driver").WithCause(err)
	}

	return database.MigrateUp(driver, database.MigrateOptions{
		FolderPath:    cfg.DatabaseMigrationFolderPath,
		TargetVersion: uint(cfg.DatabaseMigrationVersion),
	}, logger)
}
