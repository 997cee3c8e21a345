package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/model"
	"github.com/couchcryptid/wildfire-risk-service/internal/preprocess"
)

func fittedPreprocessor(t *testing.T, strategy preprocess.Strategy) *preprocess.Preprocessor {
	t.Helper()
	records := []domain.FeatureRecord{
		{Latitude: 40, Longitude: -120, DiscoveryDOY: 100, DiscoveryHour: 10, State: "CA", StatCauseDescr: "Lightning", OwnerDescr: "USFS", Season: "Spring", CauseSimple: "Natural"},
		{Latitude: 44, Longitude: -122, DiscoveryDOY: 200, DiscoveryHour: 14, State: "OR", StatCauseDescr: "Arson", OwnerDescr: "BLM", Season: "Summer", CauseSimple: "Human"},
	}
	p, err := preprocess.Fit(records, preprocess.DefaultLayout(false), strategy)
	require.NoError(t, err)
	return p
}

func leafForest(width int) *model.Forest {
	return &model.Forest{
		ClassLabels: domain.RiskTiers,
		NFeatures:   width,
		Trees: []model.Tree{{Nodes: []model.Node{
			{Feature: 0, Threshold: 0, Left: 1, Right: 2},
			{Feature: -2, Value: []float64{3, 1, 0}},
			{Feature: -2, Value: []float64{0, 1, 3}},
		}}},
	}
}

func TestSaveAndLoad(t *testing.T) {
	for _, strategy := range []preprocess.Strategy{preprocess.StrategyLabel, preprocess.StrategyOneHot} {
		t.Run(string(strategy), func(t *testing.T) {
			dir := t.TempDir()
			p := fittedPreprocessor(t, strategy)
			stats := domain.ImputationStats{Hour: 14, DayOfYear: 190, Latitude: 38.1, Longitude: -119.9}
			defaults := domain.DefaultTable()
			defaults.Unknown = "N/A"

			require.NoError(t, SavePreprocessing(dir, p, stats, defaults))
			require.NoError(t, SaveClassifier(dir, leafForest(p.Width())))

			b, err := Load(dir)
			require.NoError(t, err)

			assert.Equal(t, stats, b.Stats)
			assert.Equal(t, "N/A", b.Defaults.Unknown)
			assert.Equal(t, 12, b.Defaults.Hour)
			assert.Equal(t, strategy, b.Manifest.Strategy)
			assert.Equal(t, p.FeatureNames(), b.Preprocessor.FeatureNames())
			assert.Equal(t, p.Vocabularies(), b.Preprocessor.Vocabularies())
			assert.Equal(t, domain.RiskTiers, b.Classifier.Classes())

			rec := domain.FeatureRecord{Latitude: 41, Longitude: -121, DiscoveryDOY: 150, DiscoveryHour: 12, State: "CA", StatCauseDescr: "Arson", OwnerDescr: "USFS", Season: "Summer", CauseSimple: "Human"}
			want, err := p.Transform(rec)
			require.NoError(t, err)
			got, err := b.Preprocessor.Transform(rec)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoad_MissingFiles(t *testing.T) {
	_, err := Load(t.TempDir())
	require.ErrorIs(t, err, ErrMissingArtifact)

	dir := t.TempDir()
	require.NoError(t, SavePreprocessing(dir, fittedPreprocessor(t, preprocess.StrategyLabel), domain.ImputationStats{}, domain.Defaults{}))

	_, err = Load(dir)
	require.ErrorIs(t, err, ErrMissingArtifact, "classifier absent")

	b, err := LoadPreprocessing(dir)
	require.NoError(t, err)
	assert.Nil(t, b.Classifier)

	require.NoError(t, os.Remove(filepath.Join(dir, EncoderDir, domain.ColSeason+".json")))
	_, err = LoadPreprocessing(dir)
	require.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), "SEASON.json")
}

func TestLoad_WidthMismatch(t *testing.T) {
	dir := t.TempDir()
	p := fittedPreprocessor(t, preprocess.StrategyOneHot)
	require.NoError(t, SavePreprocessing(dir, p, domain.ImputationStats{}, domain.Defaults{}))
	require.NoError(t, SaveClassifier(dir, leafForest(p.Width()-1)))

	_, err := Load(dir)
	require.ErrorIs(t, err, model.ErrFeatureWidth)
}

func TestLoad_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SavePreprocessing(dir, fittedPreprocessor(t, preprocess.StrategyLabel), domain.ImputationStats{}, domain.Defaults{}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ScalerFile), []byte("{"), 0o600))

	_, err := LoadPreprocessing(dir)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingArtifact)
}

func TestLoad_RejectsClassifierFromEarlierPreparation(t *testing.T) {
	dir := t.TempDir()
	first := fittedPreprocessor(t, preprocess.StrategyLabel)
	require.NoError(t, SavePreprocessing(dir, first, domain.ImputationStats{}, domain.Defaults{}))
	clf := leafForest(first.Width())
	require.NoError(t, SaveClassifier(dir, clf))
	assert.Empty(t, clf.BundleFingerprint, "caller's forest is not modified")

	_, err := Load(dir)
	require.NoError(t, err)

	// Same width, different STATE codes: CA moves from 0 to 1.
	records := []domain.FeatureRecord{
		{Latitude: 33, Longitude: -86, DiscoveryDOY: 100, DiscoveryHour: 10, State: "AL", StatCauseDescr: "Lightning", OwnerDescr: "USFS", Season: "Spring", CauseSimple: "Natural"},
		{Latitude: 40, Longitude: -120, DiscoveryDOY: 200, DiscoveryHour: 14, State: "CA", StatCauseDescr: "Arson", OwnerDescr: "BLM", Season: "Summer", CauseSimple: "Human"},
	}
	second, err := preprocess.Fit(records, preprocess.DefaultLayout(false), preprocess.StrategyLabel)
	require.NoError(t, err)
	require.Equal(t, first.Width(), second.Width())
	require.NoError(t, SavePreprocessing(dir, second, domain.ImputationStats{}, domain.Defaults{}))

	_, err = Load(dir)
	require.ErrorIs(t, err, ErrStaleClassifier)

	require.NoError(t, SaveClassifier(dir, clf))
	b, err := Load(dir)
	require.NoError(t, err)
	vocab, ok := b.Preprocessor.Vocabulary(domain.ColState)
	require.True(t, ok)
	assert.Equal(t, []string{"AL", "CA"}, vocab)
}

func TestLoad_RejectsUnstampedClassifier(t *testing.T) {
	dir := t.TempDir()
	p := fittedPreprocessor(t, preprocess.StrategyOneHot)
	require.NoError(t, SavePreprocessing(dir, p, domain.ImputationStats{}, domain.Defaults{}))
	require.NoError(t, writeJSON(filepath.Join(dir, ClassifierFile), leafForest(p.Width())))

	_, err := Load(dir)
	require.ErrorIs(t, err, ErrStaleClassifier)
}

func TestLoadPreprocessing_DetectsEditedEncoder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SavePreprocessing(dir, fittedPreprocessor(t, preprocess.StrategyLabel), domain.ImputationStats{}, domain.Defaults{}))
	require.NoError(t, writeJSON(encoderPath(dir, domain.ColState), encoderFile{
		Column:   domain.ColState,
		Strategy: preprocess.StrategyLabel,
		Classes:  []string{"AL", "CA"},
	}))

	_, err := LoadPreprocessing(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fingerprint")
}

func TestFingerprint_StableAcrossRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := fittedPreprocessor(t, preprocess.StrategyOneHot)
	want, err := Fingerprint(p)
	require.NoError(t, err)
	require.NoError(t, SavePreprocessing(dir, p, domain.ImputationStats{}, domain.Defaults{}))

	b, err := LoadPreprocessing(dir)
	require.NoError(t, err)
	got, err := Fingerprint(b.Preprocessor)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, b.Manifest.Fingerprint)
}
