package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/wildfire-risk-service/internal/artifact"
	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

// ErrUnavailable is returned by every scoring call when no model bundle is
// loaded.
var ErrUnavailable = errors.New("prediction unavailable")

// RiskScorer scores incidents against the loaded model bundle.
type RiskScorer interface {
	// Score scores a form-style input whose derived fields are already known.
	Score(ctx context.Context, in domain.ScoringInput) (domain.Prediction, error)
	// ScoreRecord runs a raw-equivalent record through the feature engine
	// with the training-time fill values, then scores it.
	ScoreRecord(ctx context.Context, rec domain.RawIncidentRecord) (domain.Prediction, error)
	// Vocabularies lists the known categories per categorical column.
	Vocabularies() map[string][]string
	CheckReadiness(ctx context.Context) error
}

// Scorer applies a frozen bundle. It never refits and is safe for
// concurrent use.
type Scorer struct {
	bundle      *artifact.Bundle
	tiers       []string
	containment bool
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewScorer creates a Scorer. A nil bundle yields a Scorer that reports
// ErrUnavailable.
func NewScorer(bundle *artifact.Bundle, logger *slog.Logger, metrics *observability.Metrics) *Scorer {
	s := &Scorer{bundle: bundle, logger: logger, metrics: metrics}
	if bundle == nil {
		metrics.BundleLoaded.Set(0)
		return s
	}
	s.tiers = tierLabels(bundle.Classifier.Classes())
	for _, col := range bundle.Preprocessor.Layout().Numeric {
		if col == domain.ColFireDuration {
			s.containment = true
		}
	}
	metrics.BundleLoaded.Set(1)
	return s
}

// CheckReadiness reports whether a bundle is loaded.
func (s *Scorer) CheckReadiness(_ context.Context) error {
	if s.bundle == nil {
		return ErrUnavailable
	}
	return nil
}

func (s *Scorer) Score(_ context.Context, in domain.ScoringInput) (domain.Prediction, error) {
	if s.bundle == nil {
		s.metrics.ScoringErrors.WithLabelValues("unavailable").Inc()
		return domain.Prediction{}, ErrUnavailable
	}
	rec := domain.FeatureFromInput(in, s.bundle.Defaults)
	if s.containment {
		rec.ContHour = s.bundle.Stats.ContHour
		rec.ContDOY = s.bundle.Stats.ContDOY
		rec.FireDuration = s.bundle.Defaults.FireDuration
	}
	return s.predict(rec)
}

func (s *Scorer) ScoreRecord(_ context.Context, raw domain.RawIncidentRecord) (domain.Prediction, error) {
	if s.bundle == nil {
		s.metrics.ScoringErrors.WithLabelValues("unavailable").Inc()
		return domain.Prediction{}, ErrUnavailable
	}
	stats := s.bundle.Stats
	res, err := domain.Engineer(domain.FrameFromRecords([]domain.RawIncidentRecord{raw}), domain.Options{
		Containment: s.containment,
		Defaults:    s.bundle.Defaults,
		Stats:       &stats,
	})
	if err != nil {
		s.metrics.ScoringErrors.WithLabelValues("engineer").Inc()
		return domain.Prediction{}, fmt.Errorf("engineer record: %w", err)
	}
	if len(res.Report.Imputed) > 0 {
		s.logger.Debug("record scored with imputed values", "imputed", res.Report.Imputed)
	}
	return s.predict(res.Records[0])
}

func (s *Scorer) predict(rec domain.FeatureRecord) (domain.Prediction, error) {
	start := time.Now()
	x, err := s.bundle.Preprocessor.Transform(rec)
	if err != nil {
		s.metrics.ScoringErrors.WithLabelValues("transform").Inc()
		return domain.Prediction{}, fmt.Errorf("transform: %w", err)
	}
	probs, err := s.bundle.Classifier.PredictProba(x)
	if err != nil {
		s.metrics.ScoringErrors.WithLabelValues("classify").Inc()
		return domain.Prediction{}, fmt.Errorf("classify: %w", err)
	}
	p := domain.NewPrediction(s.tiers, probs, rec)
	s.metrics.ScoreDuration.Observe(time.Since(start).Seconds())
	s.metrics.Predictions.WithLabelValues(p.RiskTier).Inc()
	return p, nil
}

// Vocabularies lists the known categories per categorical column, or nil when
// no bundle is loaded.
func (s *Scorer) Vocabularies() map[string][]string {
	if s.bundle == nil {
		return nil
	}
	return s.bundle.Preprocessor.Vocabularies()
}

// tierLabels maps integer class labels (a label-encoded target) to risk
// tiers by index; named labels pass through.
func tierLabels(classes []string) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		idx, err := strconv.Atoi(c)
		if err != nil || idx < 0 || idx >= len(domain.RiskTiers) {
			return classes
		}
		out[i] = domain.RiskTiers[idx]
	}
	return out
}
