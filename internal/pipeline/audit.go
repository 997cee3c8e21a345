package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

// PredictionSink receives every served prediction.
type PredictionSink interface {
	Publish(ctx context.Context, p domain.Prediction) error
}

// AuditedScorer forwards successful predictions to a sink. Sink failures are
// logged and counted; they never fail the scoring call.
type AuditedScorer struct {
	RiskScorer
	sink    PredictionSink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAuditedScorer wraps inner so that every prediction is published to sink.
func NewAuditedScorer(inner RiskScorer, sink PredictionSink, logger *slog.Logger, metrics *observability.Metrics) *AuditedScorer {
	return &AuditedScorer{RiskScorer: inner, sink: sink, logger: logger, metrics: metrics}
}

func (a *AuditedScorer) Score(ctx context.Context, in domain.ScoringInput) (domain.Prediction, error) {
	p, err := a.RiskScorer.Score(ctx, in)
	if err != nil {
		return p, err
	}
	a.publish(ctx, p)
	return p, nil
}

func (a *AuditedScorer) ScoreRecord(ctx context.Context, rec domain.RawIncidentRecord) (domain.Prediction, error) {
	p, err := a.RiskScorer.ScoreRecord(ctx, rec)
	if err != nil {
		return p, err
	}
	a.publish(ctx, p)
	return p, nil
}

func (a *AuditedScorer) publish(ctx context.Context, p domain.Prediction) {
	if err := a.sink.Publish(ctx, p); err != nil {
		a.logger.Warn("publish prediction failed", "error", err, "tier", p.RiskTier)
		a.metrics.PublishErrors.Inc()
		return
	}
	a.metrics.PredictionsPublished.Inc()
}
