package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/preprocess"
)

// Source kinds for the raw incident table.
const (
	SourceSQLite     = "sqlite"
	SourceClickHouse = "clickhouse"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	ArtifactDir      string
	EncodingStrategy preprocess.Strategy
	Containment      bool
	Defaults         domain.Defaults

	SourceKind       string
	SQLitePath       string
	SQLiteTable      string
	ClickHouseAddr   string
	ClickHouseDB     string
	ClickHouseUser   string
	ClickHousePass   string
	ClickHouseTable  string
	FetchMaxAttempts int

	// Prediction audit sink; disabled when KafkaBrokers is empty.
	KafkaBrokers         []string
	KafkaPredictionTopic string

	ScoreCacheSize     int
	CORSAllowedOrigins []string
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first if present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	strategy, err := preprocess.ParseStrategy(sharedcfg.EnvOrDefault("ENCODING_STRATEGY", string(preprocess.StrategyLabel)))
	if err != nil {
		return nil, fmt.Errorf("invalid ENCODING_STRATEGY: %w", err)
	}

	containment, err := parseBool("CONTAINMENT_FEATURES", false)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseNonNegativeInt("SCORE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	attempts, err := parseNonNegativeInt("FETCH_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	if attempts == 0 {
		return nil, errors.New("FETCH_MAX_ATTEMPTS must be at least 1")
	}

	defaults := domain.DefaultTable()
	defaultsFile := os.Getenv("DEFAULTS_FILE")
	if defaultsFile != "" {
		defaults, err = LoadDefaults(defaultsFile)
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULTS_FILE: %w", err)
		}
	}

	var brokers []string
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ArtifactDir:      sharedcfg.EnvOrDefault("ARTIFACT_DIR", "models"),
		EncodingStrategy: strategy,
		Containment:      containment,
		Defaults:         defaults,

		SourceKind:       strings.ToLower(sharedcfg.EnvOrDefault("SOURCE_KIND", SourceSQLite)),
		SQLitePath:       sharedcfg.EnvOrDefault("SQLITE_PATH", "data/FPA_FOD_20170508.sqlite"),
		SQLiteTable:      sharedcfg.EnvOrDefault("SQLITE_TABLE", "Fires"),
		ClickHouseAddr:   sharedcfg.EnvOrDefault("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:     sharedcfg.EnvOrDefault("CLICKHOUSE_DB", "default"),
		ClickHouseUser:   sharedcfg.EnvOrDefault("CLICKHOUSE_USER", "default"),
		ClickHousePass:   os.Getenv("CLICKHOUSE_PASS"),
		ClickHouseTable:  sharedcfg.EnvOrDefault("CLICKHOUSE_TABLE", "fires"),
		FetchMaxAttempts: attempts,

		KafkaBrokers:         brokers,
		KafkaPredictionTopic: sharedcfg.EnvOrDefault("KAFKA_PREDICTION_TOPIC", "wildfire-risk-predictions"),

		ScoreCacheSize:     cacheSize,
		CORSAllowedOrigins: splitList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	switch cfg.SourceKind {
	case SourceSQLite:
		if !tableName.MatchString(cfg.SQLiteTable) {
			return nil, fmt.Errorf("invalid SQLITE_TABLE %q", cfg.SQLiteTable)
		}
	case SourceClickHouse:
		if !tableName.MatchString(cfg.ClickHouseTable) {
			return nil, fmt.Errorf("invalid CLICKHOUSE_TABLE %q", cfg.ClickHouseTable)
		}
	default:
		return nil, fmt.Errorf("invalid SOURCE_KIND %q: want %s or %s", cfg.SourceKind, SourceSQLite, SourceClickHouse)
	}
	if cfg.ArtifactDir == "" {
		return nil, errors.New("ARTIFACT_DIR is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaPredictionTopic == "" {
		return nil, errors.New("KAFKA_PREDICTION_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// LoadDefaults reads a YAML defaults table. Keys omitted from the file keep
// their built-in values.
func LoadDefaults(path string) (domain.Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Defaults{}, err
	}

	defaults := domain.DefaultTable()
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return domain.Defaults{}, err
	}
	if defaults.Hour < 0 || defaults.Hour > 23 {
		return domain.Defaults{}, fmt.Errorf("hour %d out of range 0-23", defaults.Hour)
	}
	if defaults.DayOfYear < 1 || defaults.DayOfYear > 366 {
		return domain.Defaults{}, fmt.Errorf("day_of_year %d out of range 1-366", defaults.DayOfYear)
	}
	if strings.TrimSpace(defaults.Unknown) == "" {
		return domain.Defaults{}, errors.New("unknown label must not be empty")
	}
	switch defaults.UnmappedRisk {
	case domain.RiskLow, domain.RiskMedium, domain.RiskHigh:
	default:
		return domain.Defaults{}, fmt.Errorf("unmapped_risk %q is not a risk tier", defaults.UnmappedRisk)
	}
	return defaults, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
