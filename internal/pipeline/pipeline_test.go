package pipeline_test

import (
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wildfire-risk-service/internal/artifact"
	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/model"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
	"github.com/couchcryptid/wildfire-risk-service/internal/pipeline"
	"github.com/couchcryptid/wildfire-risk-service/internal/preprocess"
)

// --- mocks ---

type mockSource struct {
	frame    *domain.RawFrame
	failures int
	calls    int
}

func (m *mockSource) FetchAll(_ context.Context) (*domain.RawFrame, error) {
	m.calls++
	if m.calls <= m.failures {
		return nil, errors.New("database is locked")
	}
	return m.frame, nil
}

type mockSink struct {
	mu        sync.Mutex
	published []domain.Prediction
	err       error
}

func (m *mockSink) Publish(_ context.Context, p domain.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, p)
	return nil
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

// --- fixtures ---

func rawFires() *domain.RawFrame {
	jd := domain.Number(2457573.5) // 2016-07-04
	return domain.FrameFromRecords([]domain.RawIncidentRecord{
		{
			domain.ColLatitude: domain.Number(40), domain.ColLongitude: domain.Number(-120),
			domain.ColDiscoveryTime: domain.Text("1000"), domain.ColDiscoveryDate: jd,
			domain.ColState: domain.Text("CA"), domain.ColOwnerDescr: domain.Text("USFS"),
			domain.ColStatCauseDescr: domain.Text("Lightning"),
			domain.ColFireSize:       domain.Number(0.1), domain.ColFireSizeClass: domain.Text("A"),
		},
		{
			domain.ColLatitude: domain.Number(44), domain.ColLongitude: domain.Number(-122),
			domain.ColDiscoveryTime: domain.Text("1400"), domain.ColDiscoveryDate: jd,
			domain.ColState: domain.Text("OR"), domain.ColOwnerDescr: domain.Text("BLM"),
			domain.ColStatCauseDescr: domain.Text("Arson"),
			domain.ColFireSize:       domain.Number(5000), domain.ColFireSizeClass: domain.Text("G"),
		},
		{
			domain.ColLatitude: domain.Null(), domain.ColLongitude: domain.Number(-121),
			domain.ColDiscoveryTime: domain.Null(), domain.ColDiscoveryDate: jd,
			domain.ColState: domain.Text("CA"), domain.ColOwnerDescr: domain.Null(),
			domain.ColStatCauseDescr: domain.Text("Campfire"),
			domain.ColFireSize:       domain.Text("bad"), domain.ColFireSizeClass: domain.Text("B"),
		},
	})
}

// testBundle fits on two records (hours 10 and 14, so scaled hour <= 0 means
// 12:00 or earlier) and attaches a stump that splits on the hour.
func testBundle(t *testing.T) *artifact.Bundle {
	t.Helper()
	records := []domain.FeatureRecord{
		{Latitude: 40, Longitude: -120, DiscoveryDOY: 100, DiscoveryHour: 10, State: "CA", StatCauseDescr: "Lightning", OwnerDescr: "USFS", Season: "Spring", CauseSimple: "Natural"},
		{Latitude: 44, Longitude: -122, DiscoveryDOY: 200, DiscoveryHour: 14, State: "OR", StatCauseDescr: "Arson", OwnerDescr: "BLM", Season: "Summer", CauseSimple: "Human"},
	}
	pre, err := preprocess.Fit(records, preprocess.DefaultLayout(false), preprocess.StrategyLabel)
	require.NoError(t, err)

	clf := &model.Forest{
		ClassLabels: []string{"0", "1", "2"},
		NFeatures:   pre.Width(),
		Trees: []model.Tree{{Nodes: []model.Node{
			{Feature: 3, Threshold: 0, Left: 1, Right: 2},
			{Feature: -2, Value: []float64{7, 2, 1}},
			{Feature: -2, Value: []float64{1, 2, 7}},
		}}},
	}
	require.NoError(t, clf.Validate())

	return &artifact.Bundle{
		Preprocessor: pre,
		Classifier:   clf,
		Stats:        domain.ImputationStats{Hour: 12, DayOfYear: 150, Latitude: 42, Longitude: -121},
		Defaults:     domain.DefaultTable(),
	}
}

// --- Preparer tests ---

func TestPreparer_Run_HappyPath(t *testing.T) {
	dir := t.TempDir()
	metrics := newTestMetrics()
	src := &mockSource{frame: rawFires()}

	p := pipeline.NewPreparer(src, pipeline.PrepareOptions{
		Strategy:    preprocess.StrategyOneHot,
		ArtifactDir: dir,
		WriteMatrix: true,
		MaxAttempts: 1,
	}, slog.Default(), metrics)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Report.InputRows)
	assert.Equal(t, 2, res.Report.OutputRows)
	assert.Equal(t, 1, res.Report.DroppedTargetRows)
	assert.Equal(t, 12, res.Stats.Hour, "median of 10 and 14 over the full batch")
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RecordsRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TargetRowsDropped))

	b, err := artifact.LoadPreprocessing(dir)
	require.NoError(t, err)
	assert.Equal(t, preprocess.StrategyOneHot, b.Manifest.Strategy)
	assert.Equal(t, res.Stats, b.Stats)
	assert.Equal(t, res.FeatureNames, b.Preprocessor.FeatureNames())

	f, err := os.Open(filepath.Join(dir, pipeline.MatrixFile))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	header := rows[0]
	assert.Equal(t, domain.ColRiskLevel, header[len(header)-2])
	assert.Equal(t, domain.ColFireSize, header[len(header)-1])
	assert.Equal(t, domain.RiskLow, rows[1][len(header)-2])
	assert.Equal(t, domain.RiskHigh, rows[2][len(header)-2])
	assert.NoFileExists(t, filepath.Join(dir, pipeline.MatrixFile+".tmp"))
}

func TestPreparer_Run_MatrixFailureLeavesNoBundle(t *testing.T) {
	dir := t.TempDir()
	// A directory in the staging slot makes the matrix export fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, pipeline.MatrixFile+".tmp"), 0o755))

	p := pipeline.NewPreparer(&mockSource{frame: rawFires()}, pipeline.PrepareOptions{
		Strategy:    preprocess.StrategyLabel,
		ArtifactDir: dir,
		WriteMatrix: true,
		MaxAttempts: 1,
	}, slog.Default(), newTestMetrics())

	_, err := p.Run(context.Background())
	require.Error(t, err)

	_, err = artifact.LoadPreprocessing(dir)
	require.ErrorIs(t, err, artifact.ErrMissingArtifact)
	assert.NoFileExists(t, filepath.Join(dir, pipeline.MatrixFile))
}

func TestPreparer_Run_RetriesFetch(t *testing.T) {
	metrics := newTestMetrics()
	src := &mockSource{frame: rawFires(), failures: 1}

	p := pipeline.NewPreparer(src, pipeline.PrepareOptions{
		Strategy:    preprocess.StrategyLabel,
		ArtifactDir: t.TempDir(),
		MaxAttempts: 3,
	}, slog.Default(), metrics)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FetchRetries))
}

func TestPreparer_Run_FetchExhausted(t *testing.T) {
	dir := t.TempDir()
	src := &mockSource{failures: 10}

	p := pipeline.NewPreparer(src, pipeline.PrepareOptions{
		Strategy:    preprocess.StrategyLabel,
		ArtifactDir: dir,
		MaxAttempts: 2,
	}, slog.Default(), newTestMetrics())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, src.calls)

	_, err = artifact.LoadPreprocessing(dir)
	require.ErrorIs(t, err, artifact.ErrMissingArtifact, "nothing persisted on failure")
}

func TestPreparer_Run_ContextCancellation(t *testing.T) {
	src := &mockSource{failures: 10}
	p := pipeline.NewPreparer(src, pipeline.PrepareOptions{
		Strategy:    preprocess.StrategyLabel,
		ArtifactDir: t.TempDir(),
		MaxAttempts: 5,
	}, slog.Default(), newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.calls)
}

func TestPreparer_Run_MissingTargetColumn(t *testing.T) {
	frame := rawFires()
	frame.Drop(domain.ColFireSize)

	p := pipeline.NewPreparer(&mockSource{frame: frame}, pipeline.PrepareOptions{
		Strategy:    preprocess.StrategyLabel,
		ArtifactDir: t.TempDir(),
	}, slog.Default(), newTestMetrics())

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrMissingTargetColumn)
}

// --- Scorer tests ---

func TestScorer_Score(t *testing.T) {
	metrics := newTestMetrics()
	s := pipeline.NewScorer(testBundle(t), slog.Default(), metrics)
	require.NoError(t, s.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BundleLoaded))

	tests := []struct {
		name string
		hour int
		want string
	}{
		{"morning", 9, domain.RiskLow},
		{"afternoon", 15, domain.RiskHigh},
		{"clamped", 99, domain.RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.Score(context.Background(), domain.ScoringInput{
				Latitude: 41, Longitude: -121, DiscoveryDOY: 186, DiscoveryHour: tt.hour,
				State: "CA", OwnerDescr: "USFS", Season: "Summer", StatCauseDescr: "Lightning",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.RiskTier)
			assert.InDelta(t, 1.0, p.Probabilities[domain.RiskLow]+p.Probabilities[domain.RiskMedium]+p.Probabilities[domain.RiskHigh], 1e-9)
			assert.Equal(t, domain.CauseNatural, p.Features.CauseSimple)
		})
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Predictions.WithLabelValues(domain.RiskHigh)))
}

func TestScorer_ScoreRecord(t *testing.T) {
	s := pipeline.NewScorer(testBundle(t), slog.Default(), newTestMetrics())

	p, err := s.ScoreRecord(context.Background(), domain.RawIncidentRecord{
		domain.ColDiscoveryTime:  domain.Text("1530"),
		domain.ColDiscoveryDate:  domain.Number(2457573.5),
		domain.ColStatCauseDescr: domain.Text("Arson"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, p.RiskTier)
	assert.Equal(t, 15, p.Features.DiscoveryHour)
	assert.Equal(t, domain.SeasonSummer, p.Features.Season)
	assert.Equal(t, 42.0, p.Features.Latitude, "frozen training latitude")
	assert.Equal(t, "Unknown", p.Features.State)

	p, err = s.ScoreRecord(context.Background(), domain.RawIncidentRecord{
		domain.ColDiscoveryTime: domain.Null(),
	})
	require.NoError(t, err)
	assert.Equal(t, 12, p.Features.DiscoveryHour, "frozen training hour")
	assert.Equal(t, 150, p.Features.DiscoveryDOY, "frozen training day")
	assert.Equal(t, domain.RiskLow, p.RiskTier)
}

func TestScorer_Unavailable(t *testing.T) {
	metrics := newTestMetrics()
	s := pipeline.NewScorer(nil, slog.Default(), metrics)

	require.ErrorIs(t, s.CheckReadiness(context.Background()), pipeline.ErrUnavailable)
	_, err := s.Score(context.Background(), domain.ScoringInput{})
	require.ErrorIs(t, err, pipeline.ErrUnavailable)
	_, err = s.ScoreRecord(context.Background(), domain.RawIncidentRecord{})
	require.ErrorIs(t, err, pipeline.ErrUnavailable)
	assert.Nil(t, s.Vocabularies())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.BundleLoaded))
}

func TestScorer_Vocabularies(t *testing.T) {
	s := pipeline.NewScorer(testBundle(t), slog.Default(), newTestMetrics())
	v := s.Vocabularies()
	assert.Equal(t, []string{"CA", "OR"}, v[domain.ColState])
	assert.Equal(t, []string{"Human", "Natural"}, v[domain.ColCauseSimple])
}

func TestScorer_FrozenTimestamp(t *testing.T) {
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { domain.SetClock(nil) })

	s := pipeline.NewScorer(testBundle(t), slog.Default(), newTestMetrics())
	p, err := s.Score(context.Background(), domain.ScoringInput{DiscoveryHour: 9, DiscoveryDOY: 1})
	require.NoError(t, err)
	assert.Equal(t, fixed, p.ScoredAt)
}

// --- AuditedScorer tests ---

func TestAuditedScorer_Publishes(t *testing.T) {
	sink := &mockSink{}
	metrics := newTestMetrics()
	s := pipeline.NewAuditedScorer(pipeline.NewScorer(testBundle(t), slog.Default(), metrics), sink, slog.Default(), metrics)

	_, err := s.Score(context.Background(), domain.ScoringInput{DiscoveryHour: 9, DiscoveryDOY: 1})
	require.NoError(t, err)
	_, err = s.ScoreRecord(context.Background(), domain.RawIncidentRecord{})
	require.NoError(t, err)

	assert.Len(t, sink.published, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PredictionsPublished))
}

func TestAuditedScorer_SinkFailureDoesNotFailScoring(t *testing.T) {
	sink := &mockSink{err: errors.New("broker down")}
	metrics := newTestMetrics()
	s := pipeline.NewAuditedScorer(pipeline.NewScorer(testBundle(t), slog.Default(), metrics), sink, slog.Default(), metrics)

	p, err := s.Score(context.Background(), domain.ScoringInput{DiscoveryHour: 15, DiscoveryDOY: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, p.RiskTier)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishErrors))
}

func TestAuditedScorer_SkipsFailedPredictions(t *testing.T) {
	sink := &mockSink{}
	metrics := newTestMetrics()
	s := pipeline.NewAuditedScorer(pipeline.NewScorer(nil, slog.Default(), metrics), sink, slog.Default(), metrics)

	_, err := s.Score(context.Background(), domain.ScoringInput{})
	require.ErrorIs(t, err, pipeline.ErrUnavailable)
	assert.Empty(t, sink.published)
}
