// Command riskserver serves wildfire risk predictions from a prepared model
// bundle over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/wildfire-risk-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/wildfire-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/wildfire-risk-service/internal/artifact"
	"github.com/couchcryptid/wildfire-risk-service/internal/config"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
	"github.com/couchcryptid/wildfire-risk-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// A missing or broken bundle keeps the server up with readiness failing.
	bundle, err := artifact.Load(cfg.ArtifactDir)
	if err != nil {
		logger.Error("model bundle unavailable", "dir", cfg.ArtifactDir, "error", err)
		bundle = nil
	} else {
		logger.Info("model bundle loaded",
			"dir", cfg.ArtifactDir,
			"strategy", bundle.Manifest.Strategy,
			"width", bundle.Manifest.Width,
			"classes", bundle.Classifier.Classes(),
		)
	}

	var scorer pipeline.RiskScorer = pipeline.NewScorer(bundle, logger, metrics)
	if cfg.ScoreCacheSize > 0 {
		scorer = pipeline.NewCachedScorer(scorer, cfg.ScoreCacheSize, metrics)
		logger.Info("score cache enabled", "size", cfg.ScoreCacheSize)
	}

	var writer *kafkaadapter.Writer
	if len(cfg.KafkaBrokers) > 0 {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaPredictionTopic, logger)
		scorer = pipeline.NewAuditedScorer(scorer, writer, logger, metrics)
		logger.Info("prediction audit enabled", "topic", cfg.KafkaPredictionTopic)
	} else {
		logger.Info("prediction audit disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, scorer, cfg.CORSAllowedOrigins, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
