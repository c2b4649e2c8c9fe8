package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/auctionledger/internal/recommend"
)

// Поддерживаемые хранилища леджера.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
)

// Форматы логов.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Переменные окружения, которые читает LoadConfigFromEnv.
const (
	EnvHTTPAddr                    = "LEDGER_HTTP_ADDR"
	EnvMetricsAddr                 = "LEDGER_METRICS_ADDR"
	EnvStorageDriver               = "LEDGER_STORAGE_DRIVER"
	EnvPostgresDSN                 = "LEDGER_POSTGRES_DSN"
	EnvPostgresAutoMigrate         = "LEDGER_POSTGRES_AUTO_MIGRATE"
	EnvPostgresMaxConns            = "LEDGER_POSTGRES_MAX_CONNS"
	EnvSQLitePath                  = "LEDGER_SQLITE_PATH"
	EnvModelDir                    = "LEDGER_MODEL_DIR"
	EnvBidGrid                     = "LEDGER_BID_GRID"
	EnvSequenceMaxAttempts         = "LEDGER_SEQUENCE_MAX_ATTEMPTS"
	EnvKafkaBrokers                = "KAFKA_BROKERS"
	EnvKafkaTopic                  = "LEDGER_KAFKA_TOPIC"
	EnvKafkaDLQTopic               = "LEDGER_KAFKA_DLQ_TOPIC"
	EnvOutboxPollInterval          = "LEDGER_OUTBOX_POLL_INTERVAL"
	EnvOutboxBatchSize             = "LEDGER_OUTBOX_BATCH_SIZE"
	EnvOutboxMaxAttempts           = "LEDGER_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxRetryDelay            = "LEDGER_OUTBOX_RETRY_DELAY"
	EnvOutboxStaleAfter            = "LEDGER_OUTBOX_STALE_AFTER"
	EnvIdempotencyTTL              = "LEDGER_IDEMPOTENCY_TTL"
	EnvIdempotencyCleanupInterval  = "LEDGER_IDEMPOTENCY_CLEANUP_INTERVAL"
	EnvIdempotencyCleanupBatchSize = "LEDGER_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	EnvIdempotencyCleanupGrace     = "LEDGER_IDEMPOTENCY_CLEANUP_GRACE"
	EnvLogLevel                    = "LEDGER_LOG_LEVEL"
	EnvLogFormat                   = "LEDGER_LOG_FORMAT"
)

// Config описывает настройки запуска сервиса леджера.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int
	SQLitePath          string

	// ModelDir содержит classifier.json, scaler.json и vocabulary.json.
	ModelDir string
	// BidGrid в формате start:stop:step; пустая строка означает сетку по умолчанию.
	BidGrid             string
	SequenceMaxAttempts int

	KafkaBrokers  string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxStaleAfter   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
	IdempotencyCleanupGrace     time.Duration

	LogLevel  string
	LogFormat string
}

// DefaultConfig возвращает конфигурацию для локального запуска in-memory.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PostgresMaxConns:            25,
		SQLitePath:                  "AuctionData.db",
		ModelDir:                    "models",
		SequenceMaxAttempts:         5,
		KafkaTopic:                  kafka.TopicLedgerEvents,
		KafkaDLQTopic:               kafka.TopicDeadLetterQueue,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		OutboxStaleAfter:            5 * time.Minute,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		LogLevel:                    "info",
		LogFormat:                   LogFormatText,
	}
}

// Validate проверяет согласованность настроек, которые нельзя молча заменить значением по умолчанию.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	case StorageDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("sqlite path is required for sqlite storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.BidGrid != "" {
		if _, err := recommend.ParseGrid(c.BidGrid); err != nil {
			errs = append(errs, err)
		}
	}
	if strings.TrimSpace(c.ModelDir) == "" {
		errs = append(errs, errors.New("model dir is required"))
	}
	if c.SequenceMaxAttempts <= 0 {
		errs = append(errs, errors.New("sequence max attempts must be > 0"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// EnvLookup совместим с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректное значение не прерывает загрузку: поле сохраняет значение по умолчанию,
// а причина попадает в список предупреждений.
func LoadConfigFromEnv(lookup EnvLookup) (Config, []error) {
	cfg := DefaultConfig()
	var warnings []error

	readString := func(key string, dst *string, normalize func(string) string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			v = strings.TrimSpace(v)
			if normalize != nil {
				v = normalize(v)
			}
			*dst = v
		}
	}
	readBool := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	readInt := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	readDuration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	readString(EnvHTTPAddr, &cfg.HTTPAddr, nil)
	readString(EnvMetricsAddr, &cfg.MetricsAddr, nil)
	readString(EnvStorageDriver, &cfg.StorageDriver, strings.ToLower)
	readString(EnvPostgresDSN, &cfg.PostgresDSN, nil)
	readBool(EnvPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	readInt(EnvPostgresMaxConns, &cfg.PostgresMaxConns, positive, "must be > 0")
	readString(EnvSQLitePath, &cfg.SQLitePath, nil)
	readString(EnvModelDir, &cfg.ModelDir, nil)
	readString(EnvBidGrid, &cfg.BidGrid, nil)
	readInt(EnvSequenceMaxAttempts, &cfg.SequenceMaxAttempts, positive, "must be > 0")
	readString(EnvKafkaBrokers, &cfg.KafkaBrokers, nil)
	readString(EnvKafkaTopic, &cfg.KafkaTopic, nil)
	readString(EnvKafkaDLQTopic, &cfg.KafkaDLQTopic, nil)
	readDuration(EnvOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	readInt(EnvOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	readInt(EnvOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	readDuration(EnvOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	readDuration(EnvOutboxStaleAfter, &cfg.OutboxStaleAfter, nonNegativeDuration, "must be >= 0")
	readDuration(EnvIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	readDuration(EnvIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	readInt(EnvIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")
	readDuration(EnvIdempotencyCleanupGrace, &cfg.IdempotencyCleanupGrace, nonNegativeDuration, "must be >= 0")
	readString(EnvLogLevel, &cfg.LogLevel, strings.ToLower)
	readString(EnvLogFormat, &cfg.LogFormat, strings.ToLower)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

// kafkaBrokerList разбирает список брокеров через запятую.
func kafkaBrokerList(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
