// Command prepare reads the raw incident table, engineers the feature set and
// writes the preprocessing artifacts the trainer and the risk server consume.
//
// Usage:
//
//	SOURCE_KIND=sqlite SQLITE_PATH=data/FPA_FOD_20170508.sqlite \
//	  go run ./cmd/prepare -matrix
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/wildfire-risk-service/internal/adapter/clickhouse"
	"github.com/couchcryptid/wildfire-risk-service/internal/adapter/sqlite"
	"github.com/couchcryptid/wildfire-risk-service/internal/config"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
	"github.com/couchcryptid/wildfire-risk-service/internal/pipeline"
)

type closingSource interface {
	pipeline.Source
	Close() error
}

func main() {
	matrix := flag.Bool("matrix", false, "also export the training matrix as features.csv")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *matrix, logger); err != nil {
		logger.Error("preparation failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, matrix bool, logger *slog.Logger) error {
	src, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	preparer := pipeline.NewPreparer(src, pipeline.PrepareOptions{
		Strategy:    cfg.EncodingStrategy,
		Containment: cfg.Containment,
		Defaults:    cfg.Defaults,
		ArtifactDir: cfg.ArtifactDir,
		WriteMatrix: matrix,
		MaxAttempts: cfg.FetchMaxAttempts,
	}, logger, observability.NewMetrics())

	res, err := preparer.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("preparation complete",
		"input_rows", res.Report.InputRows,
		"output_rows", res.Report.OutputRows,
		"dropped_target_rows", res.Report.DroppedTargetRows,
		"schema_defaults", res.Report.SchemaDefaults,
		"features", len(res.FeatureNames),
		"artifact_dir", cfg.ArtifactDir,
		"matrix", res.MatrixPath,
	)
	return nil
}

func openSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (closingSource, error) {
	switch cfg.SourceKind {
	case config.SourceSQLite:
		return sqlite.Open(cfg.SQLitePath, cfg.SQLiteTable, logger)
	case config.SourceClickHouse:
		return clickhouse.Open(ctx, clickhouse.Options{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
			Table:    cfg.ClickHouseTable,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.SourceKind)
	}
}
