package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppName    string `env:"APP_NAME" env-default:"clover" yaml:"app_name"`
	LogLevel   string `env:"LOG_LEVEL" env-default:"info" yaml:"log_level"`
	PrettyLogs bool   `env:"PRETTY_LOGS" env-default:"false" yaml:"pretty_logs"`

	// PostgreSQL (warehouse)
	DatabaseDSN                 string        `env:"DB_DSN" env-default:"" yaml:"db_dsn" validate:"required"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"5" yaml:"db_max_open_conns"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"2" yaml:"db_max_idle_conns"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10m" yaml:"db_conn_max_lifetime"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg" yaml:"db_migration_folder_path"`
	DatabaseMigrationVersion    int           `env:"DB_MIGRATION_VERSION" env-default:"0" yaml:"db_migration_version"`

	// ClinicalTrials.gov API
	APIBaseURL            string `env:"API_BASE_URL" env-default:"https://clinicaltrials.gov/api/v2/studies" yaml:"api_base_url"`
	APIPageSize           int    `env:"API_PAGE_SIZE" env-default:"100" yaml:"api_page_size" validate:"min=1,max=1000"`
	APIMaxRetries         int    `env:"API_MAX_RETRIES" env-default:"5" yaml:"api_max_retries" validate:"min=1"`
	APITimeoutSeconds     int    `env:"API_TIMEOUT_SECONDS" env-default:"30" yaml:"api_timeout_seconds" validate:"min=1"`
	APIBackoffBaseSeconds int    `env:"API_BACKOFF_BASE_SECONDS" env-default:"1" yaml:"api_backoff_base_seconds" validate:"min=1"`
	APIBackoffCapSeconds  int    `env:"API_BACKOFF_CAP_SECONDS" env-default:"10" yaml:"api_backoff_cap_seconds" validate:"min=1"`

	// Load
	LoadBatchSizeRows int    `env:"LOAD_BATCH_SIZE_ROWS" env-default:"5000" yaml:"load_batch_size_rows" validate:"min=1"`
	ConnectorName     string `env:"CONNECTOR_NAME" env-default:"postgres" yaml:"connector_name" validate:"oneof=postgres"`

	// Observability
	MetricsPort         int    `env:"METRICS_PORT" env-default:"0" yaml:"metrics_port"`
	TracingExporter     string `env:"TRACING_EXPORTER" env-default:"none" yaml:"tracing_exporter" validate:"oneof=none console otlp"`
	TracingOTLPEndpoint string `env:"TRACING_OTLP_ENDPOINT" env-default:"" yaml:"tracing_otlp_endpoint"`
	TracingOTLPProtocol string `env:"TRACING_OTLP_PROTOCOL" env-default:"grpc" yaml:"tracing_otlp_protocol"`
	TracingOTLPInsecure bool   `env:"TRACING_OTLP_INSECURE" env-default:"true" yaml:"tracing_otlp_insecure"`

	// Run lock (disabled when REDIS_ADDR is empty)
	RedisAddr          string `env:"REDIS_ADDR" env-default:"" yaml:"redis_addr"`
	RedisPassword      string `env:"REDIS_PASSWORD" env-default:"" yaml:"redis_password"`
	RedisDB            int    `env:"REDIS_DB" env-default:"0" yaml:"redis_db"`
	RunLockTTLSeconds  int    `env:"RUN_LOCK_TTL_SECONDS" env-default:"3600" yaml:"run_lock_ttl_seconds"`

	// Load events (disabled when KAFKA_BROKERS is empty)
	KafkaBrokers     string `env:"KAFKA_BROKERS" env-default:"" yaml:"kafka_brokers"`
	KafkaEventsTopic string `env:"KAFKA_EVENTS_TOPIC" env-default:"clover-load-events" yaml:"kafka_events_topic"`
}

// Load builds the configuration from the environment (with a .env file if one
// exists), applies the optional YAML overlay, and validates the result. The
// config is constructed once at startup and passed explicitly to each
// component.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, fmt.Errorf("bind environment: %w", err)
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configFile, err)
		}
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
